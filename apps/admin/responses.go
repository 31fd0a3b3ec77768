package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/feedback"
)

func (cli *commandLine) responses(args []string) error {
	cmd := newFlagSet("responses")
	userID := cmd.Int("user", 0, "Only list the responses of this user.")
	studyID := cmd.Int("study", 0, "Only list the responses of this study.")
	status := cmd.String("status", "", "Comma separated statuses, e.g. PENDING,OPENED.")
	if err := parseFlags(cmd, args); err != nil {
		return err
	}

	filter := feedback.ResponseFilter{UserID: *userID, StudyID: *studyID}
	if *status != "" {
		for _, s := range strings.Split(*status, ",") {
			filter.Statuses = append(filter.Statuses, feedback.ResponseStatus(core.CleanString(strings.ToUpper(s))))
		}
	}

	resps, err := cli.feedbackSvc.QueryResponses(context.Background(), filter, []core.DBOrdering{{Field: "id", Ascending: true}})
	if err != nil {
		return err
	}
	if !cli.isTTY() {
		return cli.writeJSON(resps)
	}

	tw := cli.newTable()
	fmt.Fprintln(tw, "ID\tUSER\tCONFIGURATION\tSTUDY\tSTATUS\tCREATED")
	for _, r := range resps {
		study := "-"
		if r.StudyID != nil {
			study = fmt.Sprint(*r.StudyID)
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\t%s\n", r.ID, r.UserID, r.ConfigurationID, study, r.Status, r.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
