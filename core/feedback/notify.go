package feedback

import (
	"context"
	"net/mail"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/user"
)

const surveyInviteTemplate = "survey_invite"

type mailNotifier struct {
	mailSvc    core.EmailService
	logger     core.Logger
	surveyLink func(token string) string
}

var _ Notifier = (*mailNotifier)(nil)

// NewMailNotifier emails the survey link to the assigned user.
func NewMailNotifier(mailSvc core.EmailService, logger core.Logger, conf *core.Config) Notifier {
	base := conf.FrontendBaseURL + conf.Feedback.SurveyPath
	return &mailNotifier{
		mailSvc:    mailSvc,
		logger:     logger,
		surveyLink: func(token string) string { return base + token },
	}
}

func (n *mailNotifier) SurveyAssigned(_ context.Context, usr user.User, resp SurveyResponse) {
	to, ok := usr.MailAddress()
	if !ok {
		n.logger.Warn("feedback: assigned user has no email, invite not sent", usr)
		return
	}
	n.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{to},
		Subject:      "Tell us how it went",
		TemplateName: surveyInviteTemplate,
		TemplateData: map[string]interface{}{
			"Name":  usr.DisplayName(),
			"Link":  n.surveyLink(resp.Token),
			"Token": resp.Token,
		},
	})
}
