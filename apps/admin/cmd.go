package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/feedback"
	"github.com/trezcool/feedback/core/user"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf        *core.Config
	db          *sql.DB
	users       user.Repository
	feedbackSvc *feedback.Service
	out         io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run goose migrations (up, up-by-one, up-to, down, down-to, redo, reset, status, version)")
	fmt.Println("  trigger -user ID -type TRIGGER_TYPE [-academy ID] [-cohort ID] [-syllabus SLUG] [-version N] [-module N] [-asset SLUG] - evaluate a trigger")
	fmt.Println("  expire [-older-than DURATION] - expire unanswered survey responses")
	fmt.Println("  responses [-user ID] [-study ID] [-status STATUS] - list survey responses")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "trigger":
		return cli.trigger(args[2:])
	case "expire":
		return cli.expire(args[2:])
	case "responses":
		return cli.responses(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

// isTTY reports whether cli.out is an interactive terminal.
func (cli *commandLine) isTTY() bool {
	f, ok := cli.out.(*os.File)
	return ok && isTerminalFunc(int(f.Fd()))
}

func (cli *commandLine) writeJSON(v interface{}) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (cli *commandLine) newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
}

// optionalInt is a flag.Value left nil unless set.
type optionalInt struct {
	val *int
}

func (o *optionalInt) String() string {
	if o.val == nil {
		return ""
	}
	return fmt.Sprint(*o.val)
}

func (o *optionalInt) Set(s string) error {
	var i int
	if _, err := fmt.Sscan(s, &i); err != nil {
		return fmt.Errorf("%q is not an integer", s)
	}
	o.val = &i
	return nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return errHelp
		}
		return err
	}
	return nil
}
