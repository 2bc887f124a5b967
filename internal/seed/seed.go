// Package seed 示例训练邮件
package seed

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"sprintmail/internal/model"
	"sprintmail/internal/repository"
	"sprintmail/internal/service/learning"
)

type Uploader interface {
	Upload(ctx context.Context, in learning.UploadInput) (*model.TrainingEmail, error)
}

// Report 插入与跳过（内容重复）的数量
type Report struct {
	Inserted []int64
	Skipped  int
}

// Run 逐封上传示例邮件，重复内容跳过
func Run(ctx context.Context, u Uploader, logger *zap.Logger) (*Report, error) {
	rep := &Report{}
	for _, in := range TrainingEmails {
		email, err := u.Upload(ctx, in)
		if errors.Is(err, repository.ErrDuplicate) {
			logger.Info("Seed email already present, skipping", zap.String("subject", in.Subject))
			rep.Skipped++
			continue
		}
		if err != nil {
			return rep, fmt.Errorf("seed %q: %w", in.Subject, err)
		}
		rep.Inserted = append(rep.Inserted, email.ID)
	}
	return rep, nil
}

var TrainingEmails = []learning.UploadInput{
	{
		EmailType:  model.EmailTypeSprintCommitment,
		Subject:    "December Sprint 3 Commitment and Goal",
		SenderName: "User",
		Content: `Hi all,
I hope you're doing well.
Following our Sprint Planning session, here's a summary of our **December Sprint 3 Commitment and Goal**:

**Sprint Goal**
Our goal for this sprint is to focus on fixing VLE weekly defects and Behat failures. Our tester will ensure a stable release quality by verifying UI fixes for the Labs theme, validating accessibility improvements in the booking system, and testing bug fixes for the Study app v4.4.1.6 / v5.0.

**Sprint Commitment**
* **Commitment (Development + Testing)**
ID | Title | State | Release | Work Item Type | Tags
926008 | StudyApp v4.4.1.6/5: Box styling issue | Developing | 2025-09b | Defect | Local testing; VLE weekly
926808 | StudyApp 4.4.1.6/5: Dark mode visibility in assessment tab | Developing | 2025-09b | Defect | Local peer-code review; VLE weekly
920726 | Labs: Cancel button in booking page is not aligned correctly | Committed | 2025-09b | Defect | VLE weekly

* **Commitment (Development Only)**
ID | Title | State | Release | Work Item Type | Tags
887566 | Behat:mod/forumng(tt,OUVLE_465 & OUVLE_467)-Verify "Split" | Committed | 2025-12a | Defect | CI Defect
925494 | Behat: local/ouauthoring(tt,OUVLE_467) -Reverts and publishes the document. | Committed | 2025-12a | Defect | CI

If you believe any additional tickets would be a good fit, please feel free to assign them to us during the sprint, and we'll incorporate them into our plan accordingly.

If you have any questions or concerns, feel free to reach out.`,
	},
	{
		EmailType:  model.EmailTypeSprintCommitment,
		Subject:    "Sprint 23 Commitments - Development Team",
		SenderName: "Alex",
		Recipient:  "Sarah",
		Content: `Hi Sarah,

Here are our commitments for Sprint 23 (March 4-15):

• Complete user authentication module
• Fix critical bugs in payment system
• Implement new dashboard design
• Code review for mobile app features

We're confident about delivering these items based on our current capacity and previous sprint velocity.

Let me know if you have any questions!

Best,
Alex`,
	},
	{
		EmailType:  model.EmailTypeSprintUpdate,
		Subject:    "Sprint 23 Mid-Sprint Update",
		SenderName: "Alex",
		Recipient:  "Sarah",
		Content: `Hi Sarah,

Quick update on Sprint 23 progress:

✅ Completed:
• User authentication module (100%)
• Payment system bug fixes (3/4 completed)

🔄 In Progress:
• Dashboard design implementation (60%)
• Mobile app code reviews (ongoing)

⚠️ Blockers:
• Waiting for API documentation from backend team

Overall we're tracking well to meet our commitments. The API blocker might delay mobile reviews by 1 day but shouldn't impact sprint completion.

Thanks,
Alex`,
	},
	{
		EmailType:  model.EmailTypeRetrospective,
		Subject:    "Sprint 22 Retrospective Summary",
		SenderName: "Alex",
		Recipient:  "Team",
		Content: `Team,

Here's our Sprint 22 retrospective summary:

🎯 What Went Well:
• Great collaboration on the new feature
• Improved our testing process
• Met all sprint commitments

🔧 What Could Improve:
• Earlier identification of dependencies
• Better time estimation for complex tasks
• More frequent communication with stakeholders

📋 Action Items:
• Implement dependency mapping in sprint planning
• Use story points more consistently
• Schedule weekly stakeholder check-ins

Great job everyone on a successful sprint!

Best,
Alex`,
	},
}
