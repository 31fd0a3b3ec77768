package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) expire(args []string) error {
	cmd := newFlagSet("expire")
	olderThan := cmd.Duration("older-than", cli.conf.Feedback.ResponseTTL, "Expire unanswered responses created before this age.")
	if err := parseFlags(cmd, args); err != nil {
		return err
	}
	if *olderThan <= 0 {
		return fmt.Errorf("older-than must be positive (got %s)", *olderThan)
	}

	n, err := cli.feedbackSvc.ExpireResponses(context.Background(), *olderThan)
	if err != nil {
		return err
	}
	if !cli.isTTY() {
		return cli.writeJSON(map[string]int{"expired": n})
	}
	_, err = fmt.Fprintf(cli.out, "%d survey responses expired\n", n)
	return err
}
