package generation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/bookworm-ai/bookworm/internal/llm"
	"github.com/bookworm-ai/bookworm/internal/storage"
	"github.com/bookworm-ai/bookworm/internal/vector"
)

func TestExtractCitations(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   []string
	}{
		{
			"single citation",
			"Bipedal robots balance via ZMP [Chapter Locomotion: Weeks 3-4].",
			[]string{"[Chapter Locomotion: Weeks 3-4]"},
		},
		{
			"multiple citations",
			"See [Chapter Kinematics: Weeks 1-2] and also [Chapter Learning: Weeks 7-8] for details.",
			[]string{"[Chapter Kinematics: Weeks 1-2]", "[Chapter Learning: Weeks 7-8]"},
		},
		{
			"no citations",
			"Robots are machines.",
			[]string{},
		},
		{
			"bracket without chapter prefix ignored",
			"An array access looks like a[i] in code. [Section 2] is not a citation.",
			[]string{},
		},
		{
			"duplicates preserved",
			"[Chapter A: B] then again [Chapter A: B].",
			[]string{"[Chapter A: B]", "[Chapter A: B]"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCitations(tt.answer)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractCitations() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatSources(t *testing.T) {
	long := strings.Repeat("x", 250)
	chunks := []vector.ScoredChunk{
		{
			Chunk: vector.Chunk{
				Content:  long,
				Metadata: vector.Metadata{Title: "Locomotion", Week: "Weeks 3-4", FilePath: "docs/walk.md"},
			},
			Score: 0.87,
		},
		{
			Chunk: vector.Chunk{Content: "short"},
			Score: 0.5,
		},
	}

	sources := FormatSources(chunks)
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}

	if sources[0].Chapter != "Locomotion" || sources[0].Section != "Weeks 3-4" {
		t.Errorf("unexpected attribution %+v", sources[0])
	}
	if len([]rune(sources[0].Content)) != 203 || !strings.HasSuffix(sources[0].Content, "...") {
		t.Errorf("long content not truncated to 200 runes + ellipsis: %d", len(sources[0].Content))
	}
	if sources[0].RelevanceScore != 0.87 {
		t.Errorf("RelevanceScore = %f", sources[0].RelevanceScore)
	}

	if sources[1].Chapter != "Unknown Chapter" || sources[1].Section != "Unknown Section" {
		t.Errorf("blank metadata not defaulted: %+v", sources[1])
	}
	if sources[1].Content != "short" {
		t.Errorf("short content modified: %q", sources[1].Content)
	}
}

func TestFormatSources_Empty(t *testing.T) {
	if got := FormatSources(nil); got == nil || len(got) != 0 {
		t.Errorf("FormatSources(nil) = %v, want []", got)
	}
}

func TestBuildPrompt(t *testing.T) {
	history := []storage.Message{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "second"},
		{Role: "user", Content: "third"},
		{Role: "assistant", Content: "fourth"},
		{Role: "user", Content: "fifth"},
		{Role: "assistant", Content: "sixth"},
	}

	prompt := BuildPrompt("What is ZMP?", "some context", history)

	if strings.Contains(prompt, "first") || strings.Contains(prompt, "second") {
		t.Error("prompt should carry only the last 4 turns")
	}
	for _, want := range []string{
		"USER: third", "ASSISTANT: fourth", "USER: fifth", "ASSISTANT: sixth",
		"Context:\nsome context",
		"Question: What is ZMP?",
		"Answer (with citations):",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildPrompt_NoHistoryNoContext(t *testing.T) {
	prompt := BuildPrompt("Q?", "", nil)
	if strings.Contains(prompt, "Previous conversation") {
		t.Error("empty history should omit the history block")
	}
	if strings.Contains(prompt, "Context:") {
		t.Error("empty context should omit the context block")
	}
}

type scriptedChatter struct {
	responses []string
	errs      []error
	reqs      []llm.Request
}

func (s *scriptedChatter) Chat(_ context.Context, req llm.Request) (string, llm.Usage, error) {
	i := len(s.reqs)
	s.reqs = append(s.reqs, req)
	var resp string
	var err error
	if i < len(s.responses) {
		resp = s.responses[i]
	}
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return resp, llm.Usage{}, err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGenerate_Grounded(t *testing.T) {
	chat := &scriptedChatter{responses: []string{"ZMP is a criterion [Chapter Locomotion: Weeks 3-4]."}}
	g := NewGenerator(chat, discardLogger())

	res := g.Generate(context.Background(), "What is ZMP?", "context here", nil)
	if res.Answer != "ZMP is a criterion [Chapter Locomotion: Weeks 3-4]." {
		t.Errorf("Answer = %q", res.Answer)
	}
	if len(res.Citations) != 1 {
		t.Errorf("Citations = %v", res.Citations)
	}
	if len(chat.reqs) != 1 {
		t.Fatalf("expected 1 call, got %d", len(chat.reqs))
	}
	if chat.reqs[0].Temperature != 0.3 || chat.reqs[0].MaxTokens != 1000 {
		t.Errorf("grounded request params: %+v", chat.reqs[0])
	}
}

func TestGenerate_EmptyContextGoesGeneral(t *testing.T) {
	chat := &scriptedChatter{responses: []string{"General knowledge answer."}}
	g := NewGenerator(chat, discardLogger())

	res := g.Generate(context.Background(), "Q?", "", nil)
	if res.Answer != "General knowledge answer." {
		t.Errorf("Answer = %q", res.Answer)
	}
	if len(chat.reqs) != 1 {
		t.Fatalf("expected 1 call, got %d", len(chat.reqs))
	}
	if chat.reqs[0].Temperature != 0.5 {
		t.Errorf("general request temperature = %f", chat.reqs[0].Temperature)
	}
}

func TestGenerate_GroundedFailureFallsToGeneral(t *testing.T) {
	chat := &scriptedChatter{
		responses: []string{"", "Fallback general answer."},
		errs:      []error{errors.New("model overloaded"), nil},
	}
	g := NewGenerator(chat, discardLogger())

	res := g.Generate(context.Background(), "Q?", "context", nil)
	if res.Answer != "Fallback general answer." {
		t.Errorf("Answer = %q", res.Answer)
	}
	if len(chat.reqs) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(chat.reqs))
	}
}

func TestGenerate_BlankGroundedAnswerFallsToGeneral(t *testing.T) {
	chat := &scriptedChatter{responses: []string{"   ", "Real answer."}}
	g := NewGenerator(chat, discardLogger())

	res := g.Generate(context.Background(), "Q?", "context", nil)
	if res.Answer != "Real answer." {
		t.Errorf("Answer = %q", res.Answer)
	}
}

func TestGenerate_AllFailYieldsFallbackAnswer(t *testing.T) {
	chat := &scriptedChatter{errs: []error{errors.New("down"), errors.New("down")}}
	g := NewGenerator(chat, discardLogger())

	res := g.Generate(context.Background(), "Q?", "context", nil)
	if res.Answer != FallbackAnswer {
		t.Errorf("Answer = %q", res.Answer)
	}
	if res.Citations == nil || len(res.Citations) != 0 {
		t.Errorf("Citations = %v, want []", res.Citations)
	}
}
