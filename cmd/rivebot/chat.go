package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voicetyped/rivebot/pkg/brain"
	"github.com/voicetyped/rivebot/pkg/script"
	"github.com/voicetyped/rivebot/pkg/session"
)

var (
	chatDir  string
	chatUser string
	chatSeed uint64
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat with the scripts in a directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine, err := loadEngine(cmd.Context(), chatDir, chatSeed, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		return repl(cmd.Context(), engine, chatUser, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatDir, "dir", "./scripts", "script directory")
	chatCmd.Flags().StringVar(&chatUser, "user", "localuser", "user id for the session")
	chatCmd.Flags().Uint64Var(&chatSeed, "seed", 0, "random seed, 0 picks one")
}

// loadEngine builds an engine from dir. Compile issues are printed but do
// not stop the chat.
func loadEngine(ctx context.Context, dir string, seed uint64, errOut io.Writer) (*brain.Engine, error) {
	scripts, err := script.NewLoader(dir).LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	engine := brain.NewEngine(brain.Options{Seed: seed}, session.NewMemoryStore(), nil)
	err = engine.Reload(ctx, scripts...)
	var cerr *brain.CompileErrors
	switch {
	case err == nil:
	case errors.As(err, &cerr):
		for _, issue := range cerr.Issues {
			fmt.Fprintf(errOut, "warning: %s\n", issue.Error())
		}
	default:
		return nil, err
	}
	return engine, nil
}

func repl(ctx context.Context, engine *brain.Engine, user string, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "You> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/dump topics":
			dumpTopics(engine.Brain(), out)
			continue
		case "/dump vars":
			if err := dumpVars(ctx, engine, user, out); err != nil {
				return err
			}
			continue
		}

		reply, err := engine.Reply(ctx, user, line)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Bot> %s\n", reply)
	}
}

func dumpTopics(b *brain.Brain, out io.Writer) {
	for _, name := range b.TopicNames() {
		t, _ := b.Topic(name)
		fmt.Fprintf(out, "topic %s: %d triggers", name, len(t.Triggers))
		if len(t.Includes) > 0 {
			fmt.Fprintf(out, " includes=%s", strings.Join(t.Includes, ","))
		}
		if len(t.Inherits) > 0 {
			fmt.Fprintf(out, " inherits=%s", strings.Join(t.Inherits, ","))
		}
		fmt.Fprintln(out)
	}
}

func dumpVars(ctx context.Context, engine *brain.Engine, user string, out io.Writer) error {
	lex := engine.Brain().Lexicon().Snapshot()
	printMap(out, "bot", lex.Vars)
	printMap(out, "global", lex.Globals)

	sess, err := engine.Session(ctx, user)
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	printMap(out, "user", sess.Snapshot().Variables)
	return nil
}

func printMap(out io.Writer, label string, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%s %s = %s\n", label, k, m[k])
	}
}
