package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/feedback/core/feedback"
	"github.com/trezcool/feedback/core/user"
)

var errUnknownTriggerType = errors.New("unknown trigger type")

type triggerResult struct {
	Assigned     bool   `json:"assigned"`
	SurveyConfig int    `json:"survey_config,omitempty"`
	SurveyStudy  int    `json:"survey_study,omitempty"`
	Token        string `json:"token,omitempty"`
}

func (cli *commandLine) trigger(args []string) error {
	cmd := newFlagSet("trigger")
	userID := cmd.Int("user", 0, "The acting user's ID.")
	triggerType := cmd.String("type", "", "The trigger type: module_completed, syllabus_completed, learnpack_completed or course_completed.")
	var acad, cohort, version, module optionalInt
	cmd.Var(&acad, "academy", "The academy ID.")
	cmd.Var(&cohort, "cohort", "The cohort ID.")
	syllabus := cmd.String("syllabus", "", "The syllabus slug.")
	cmd.Var(&version, "version", "The syllabus version.")
	cmd.Var(&module, "module", "The completed module index.")
	asset := cmd.String("asset", "", "The asset slug.")

	if err := parseFlags(cmd, args); err != nil {
		return err
	}
	if *userID <= 0 || *triggerType == "" {
		return errHelp
	}
	trigger, ok := feedback.ParseTriggerType(*triggerType)
	if !ok {
		return errors.Wrap(errUnknownTriggerType, *triggerType)
	}

	data := feedback.Context{}
	if acad.val != nil {
		data[feedback.KeyAcademy] = *acad.val
	}
	if cohort.val != nil {
		data[feedback.KeyCohortID] = *cohort.val
	}
	if *syllabus != "" {
		data[feedback.KeySyllabusSlug] = *syllabus
	}
	if version.val != nil {
		data[feedback.KeySyllabusVersion] = *version.val
	}
	if module.val != nil {
		data[feedback.KeyModule] = *module.val
	}
	if *asset != "" {
		data[feedback.KeyAssetSlug] = *asset
	}

	ctx := context.Background()
	usr, err := cli.users.GetUser(ctx, *userID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.ErrNotFound
		}
		return errors.Wrap(err, "finding user by ID")
	}

	asg, err := cli.feedbackSvc.Trigger(ctx, usr, trigger, data)
	if err != nil {
		return err
	}

	res := triggerResult{}
	if asg != nil {
		res = triggerResult{Assigned: true, SurveyConfig: asg.ConfigurationID, SurveyStudy: asg.StudyID, Token: asg.Token}
	}
	if !cli.isTTY() {
		return cli.writeJSON(res)
	}

	if !res.Assigned {
		_, err = fmt.Fprintln(cli.out, "no survey assigned")
		return err
	}
	tw := cli.newTable()
	fmt.Fprintln(tw, "CONFIGURATION\tSTUDY\tTOKEN")
	fmt.Fprintf(tw, "%d\t%d\t%s\n", res.SurveyConfig, res.SurveyStudy, res.Token)
	return tw.Flush()
}
