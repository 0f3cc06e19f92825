package slack

import (
	"fmt"

	slackapi "github.com/slack-go/slack"

	"hitlbot/internal/agent"
	"hitlbot/internal/approval"
)

func plainText(text string) *slackapi.TextBlockObject {
	return slackapi.NewTextBlockObject(slackapi.PlainTextType, text, false, false)
}

// ApprovalBlocks renders the tool call and its Approve and Reject buttons.
// Button action ids are the encoded identities of the paused call.
func ApprovalBlocks(req agent.ApprovalRequired) []slackapi.Block {
	id := approval.Identity{AgentName: req.AgentName, RunID: req.RunID, ToolCallID: req.ToolCallID}

	summary := slackapi.NewTextBlockObject(slackapi.MarkdownType,
		fmt.Sprintf("*Approval Required for %s*\n```%s```", req.ToolName, req.ArgsJSON()), false, false)

	approve := slackapi.NewButtonBlockElement(id.WithAction(approval.ActionApprove).String(), approval.ActionApprove, plainText(ApproveButtonText)).
		WithStyle(slackapi.StylePrimary)
	reject := slackapi.NewButtonBlockElement(id.WithAction(approval.ActionReject).String(), approval.ActionReject, plainText(RejectButtonText)).
		WithStyle(slackapi.StyleDanger)

	return []slackapi.Block{
		slackapi.NewSectionBlock(summary, nil, nil),
		slackapi.NewActionBlock(ApprovalActionsBlockID, approve, reject),
	}
}

// RejectionModal builds the reason form opened by the Reject button. The
// callback id identifies the call and the private metadata locates the
// approval message.
func RejectionModal(id approval.Identity, meta approval.Metadata) (slackapi.ModalViewRequest, error) {
	privateMetadata, err := approval.SerializeMetadata(meta)
	if err != nil {
		return slackapi.ModalViewRequest{}, err
	}

	input := slackapi.NewPlainTextInputBlockElement(plainText("Let the agent know why"), ReasonInputActionID)
	input.Multiline = true
	reason := slackapi.NewInputBlock(ReasonBlockID, plainText("Reason for rejection"), nil, input)
	reason.Optional = true

	return slackapi.ModalViewRequest{
		Type:            slackapi.VTModal,
		Title:           plainText("Reject Request"),
		Submit:          plainText("Reject"),
		Close:           plainText("Cancel"),
		CallbackID:      id.WithAction(approval.ActionRejectReason).String(),
		PrivateMetadata: privateMetadata,
		Blocks:          slackapi.Blocks{BlockSet: []slackapi.Block{reason}},
	}, nil
}
