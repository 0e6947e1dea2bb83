package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/vitalog/vitalog/internal/clarify"
	"github.com/vitalog/vitalog/internal/classify"
	"github.com/vitalog/vitalog/internal/pipeline"
	"github.com/vitalog/vitalog/internal/store"
)

func runLog(args []string) error {
	opts, rest, err := parseCommon(args)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return fmt.Errorf("usage: vitalog log <text> [--user <id>] [--no-llm]")
	}
	text := strings.Join(rest, " ")

	resolved, err := resolve(opts)
	if err != nil {
		return err
	}
	s, err := openStore(resolved)
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := buildPipeline(resolved, opts.noLLM)
	if err != nil {
		return err
	}

	ctx := context.Background()
	user := resolved.UserID.Value
	in := pipeline.Input{Text: text, UserID: user}
	out := p.Interpret(ctx, in, historyContext(ctx, s, user))

	emitter := pipeline.NewEmitter(s)

	switch out.Action {
	case pipeline.ActionCommit:
		record, err := emitter.EmitOutcome(ctx, in, out)
		if err != nil {
			return fmt.Errorf("storing record: %w", err)
		}
		fmt.Printf("Logged %s (confidence %.2f)\n", record.Kind, record.Confidence)
		printFields(record)
		return nil

	case pipeline.ActionStoreWithFlag:
		record, err := emitter.EmitOutcome(ctx, in, out)
		if err != nil {
			return fmt.Errorf("storing record: %w", err)
		}
		fmt.Printf("Stored for review — couldn't confidently interpret %q.\n", text)
		fmt.Printf("See it later with: vitalog review (id: %s)\n", record.ID)
		return nil

	case pipeline.ActionClarify:
		return runClarifyLoop(ctx, p, emitter, in, out.Session)
	}
	return fmt.Errorf("unexpected action %q", out.Action)
}

// runClarifyLoop drives a clarification session interactively on the
// terminal. "back" revisits the previous question, "skip" stores the
// original interpretation flagged for review.
func runClarifyLoop(ctx context.Context, p *pipeline.Pipeline, emitter *pipeline.Emitter, in pipeline.Input, session *clarify.Session) error {
	fmt.Printf("Got %s, but need a couple of details. (answer, \"back\", or \"skip\")\n\n",
		session.Original().Kind)

	reader := bufio.NewReader(os.Stdin)
	for session.State() == clarify.StateActive {
		q, ok := session.Current()
		if !ok {
			break
		}
		answered, total := session.Progress()
		fmt.Printf("[%d/%d] %s", answered+1, total, q.Prompt)
		if len(q.Options) > 0 {
			fmt.Printf(" (%s)", strings.Join(q.Options, "/"))
		}
		fmt.Print("\n> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			// EOF mid-session: treat as a skip so the entry survives.
			if skipErr := session.Skip(); skipErr != nil {
				return skipErr
			}
			break
		}
		line = strings.TrimSpace(line)

		switch strings.ToLower(line) {
		case "skip":
			if err := session.Skip(); err != nil {
				return err
			}
		case "back":
			if err := session.Back(); err != nil {
				fmt.Printf("  %v\n", err)
			}
		case "":
			fmt.Println("  (answer required; type \"skip\" to give up)")
		default:
			if err := session.Answer(line); err != nil {
				fmt.Printf("  %v\n", err)
			}
		}
	}

	result, emitOpts, err := p.FinalizeSession(session)
	if err != nil {
		return fmt.Errorf("finalizing session: %w", err)
	}
	record, err := emitter.Emit(ctx, in, result, emitOpts)
	if err != nil {
		return fmt.Errorf("storing record: %w", err)
	}

	if session.Skipped() {
		fmt.Printf("\nStored as-is, flagged for review (id: %s)\n", record.ID)
		return nil
	}
	fmt.Printf("\nConfirmed and logged %s (confidence %.2f)\n", record.Kind, record.Confidence)
	printFields(record)
	return nil
}

// historyContext loads the user's recent entries for the classifier prompt.
// A cold or failing store just means less context.
func historyContext(ctx context.Context, s store.Store, user string) classify.Context {
	cctx := classify.Context{Profile: classify.Profile{UserID: user}}
	records, err := s.QueryRecent(ctx, user, 5)
	if err != nil {
		return cctx
	}
	for _, r := range records {
		cctx.RecentLogs = append(cctx.RecentLogs, classify.RecentLog{
			Kind:     r.Kind,
			RawText:  r.RawText,
			LoggedAt: r.CreatedAt,
		})
	}
	return cctx
}

func printFields(r *store.ActivityRecord) {
	data, _ := json.MarshalIndent(r.Fields, "", "  ")
	fmt.Println(string(data))
}
