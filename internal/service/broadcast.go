package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/edupaila/community-server-go/internal/errors"
	"github.com/edupaila/community-server-go/internal/mailer"
	"github.com/edupaila/community-server-go/internal/metrics"
	"github.com/edupaila/community-server-go/internal/model"
	"github.com/edupaila/community-server-go/internal/repository"
	"github.com/edupaila/community-server-go/internal/sse"
	"github.com/edupaila/community-server-go/internal/util"
)

// ProgressPublisher is satisfied by *sse.Broker.
type ProgressPublisher interface {
	Publish(ctx context.Context, operatorID string, event sse.Event) error
}

// AttachmentInput is a named file; an empty Content lists the name without
// attaching anything.
type AttachmentInput struct {
	Name    string
	Content string
}

type DispatchRequest struct {
	Subject     string
	Body        string
	Recipients  []string
	MediaLinks  []string
	Attachments []AttachmentInput
	OperatorID  string
	SentBy      string
}

type DispatchOutcome struct {
	Broadcast *model.Broadcast
	Results   []model.DispatchResult
}

func (o *DispatchOutcome) Failed() int {
	n := 0
	for _, r := range o.Results {
		if !r.Success {
			n++
		}
	}
	return n
}

func (o *DispatchOutcome) Sent() int {
	return len(o.Results) - o.Failed()
}

type BroadcastService struct {
	accounts   repository.AccountRepository
	broadcasts repository.BroadcastRepository
	mailer     Mailer
	progress   ProgressPublisher
}

func NewBroadcastService(
	accounts repository.AccountRepository,
	broadcasts repository.BroadcastRepository,
	mailer Mailer,
	progress ProgressPublisher,
) *BroadcastService {
	return &BroadcastService{
		accounts:   accounts,
		broadcasts: broadcasts,
		mailer:     mailer,
		progress:   progress,
	}
}

// Dispatch sends one personalised email per recipient, in order. The audit
// record is stored before the relay is contacted; after that, failures only
// show up in the results, including a relay that cannot be reached.
func (s *BroadcastService) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchOutcome, error) {
	start := time.Now()

	subject := strings.TrimSpace(req.Subject)
	body := strings.TrimSpace(req.Body)
	if subject == "" {
		return nil, apperrors.MissingRequired("subject")
	}
	if body == "" {
		return nil, apperrors.MissingRequired("content")
	}

	recipients, err := s.resolveRecipients(ctx, req.Recipients)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, apperrors.NoRecipients()
	}

	names, err := s.displayNames(ctx, recipients)
	if err != nil {
		return nil, err
	}

	attachments := make([]mailer.Attachment, 0, len(req.Attachments))
	attachmentNames := make([]string, 0, len(req.Attachments))
	for _, in := range req.Attachments {
		attachmentNames = append(attachmentNames, in.Name)
		if strings.TrimSpace(in.Content) == "" {
			// listed in the email and the record, but nothing to attach
			continue
		}
		att, err := mailer.NormalizeAttachment(in.Name, in.Content)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, att)
	}
	mediaLinks := cleanLinks(req.MediaLinks)

	record, err := s.broadcasts.Create(ctx, model.CreateBroadcastParams{
		Subject:         subject,
		Body:            body,
		MediaLinks:      mediaLinks,
		AttachmentNames: attachmentNames,
		Recipients:      recipients,
		SentBy:          req.SentBy,
	})
	if err != nil {
		return nil, apperrors.StorageUnavailable(err)
	}
	metrics.BroadcastsTotal.Inc()

	log.Info().
		Str("broadcastId", record.ID).
		Str("sentBy", req.SentBy).
		Int("recipients", len(recipients)).
		Int("attachments", len(attachments)).
		Msg("broadcast started")

	s.publish(ctx, req.OperatorID, sse.EventBroadcastStarted, map[string]any{
		"broadcastId": record.ID,
		"total":       len(recipients),
	})

	// an unusable relay fails the whole batch without attempting any send
	relayErr := s.mailer.Verify(ctx)
	if relayErr != nil {
		log.Error().
			Err(relayErr).
			Str("broadcastId", record.ID).
			Msg("mail relay check failed, no messages sent")
	}

	results := make([]model.DispatchResult, 0, len(recipients))
	for i, to := range recipients {
		var result model.DispatchResult
		switch {
		case relayErr != nil:
			result = failedResult(to, relayErr)
		case ctx.Err() != nil:
			result = model.DispatchResult{Recipient: to, Error: ctx.Err().Error()}
		default:
			result = s.sendOne(ctx, to, names[to], subject, body, mediaLinks, attachmentNames, attachments)
		}
		results = append(results, result)

		if result.Success {
			metrics.BroadcastDeliveries.WithLabelValues(metrics.ResultSuccess).Inc()
		} else {
			metrics.BroadcastDeliveries.WithLabelValues(metrics.ResultFailure).Inc()
			log.Warn().
				Str("broadcastId", record.ID).
				Str("recipient", to).
				Str("error", result.Error).
				Msg("broadcast delivery failed")
		}

		s.publish(ctx, req.OperatorID, sse.EventBroadcastProgress, map[string]any{
			"broadcastId": record.ID,
			"index":       i + 1,
			"total":       len(recipients),
			"result":      result,
		})
	}

	outcome := &DispatchOutcome{Broadcast: record, Results: results}
	metrics.BroadcastDuration.Observe(time.Since(start).Seconds())

	s.publish(ctx, req.OperatorID, sse.EventBroadcastComplete, map[string]any{
		"broadcastId": record.ID,
		"sent":        outcome.Sent(),
		"failed":      outcome.Failed(),
	})

	log.Info().
		Str("broadcastId", record.ID).
		Int("sent", outcome.Sent()).
		Int("failed", outcome.Failed()).
		Dur("duration", time.Since(start)).
		Msg("broadcast finished")

	return outcome, nil
}

func (s *BroadcastService) sendOne(
	ctx context.Context,
	to, name, subject, body string,
	mediaLinks, attachmentNames []string,
	attachments []mailer.Attachment,
) model.DispatchResult {
	if !util.IsEmailLike(to) {
		return model.DispatchResult{
			Recipient: to,
			Code:      string(apperrors.ErrCodeInvalidRecipient),
			Error:     "invalid recipient",
		}
	}

	html, err := mailer.RenderBroadcast(mailer.BroadcastView{
		Name:            name,
		Subject:         subject,
		Body:            body,
		MediaLinks:      mediaLinks,
		AttachmentNames: attachmentNames,
	})
	if err != nil {
		return model.DispatchResult{Recipient: to, Code: string(apperrors.ErrCodeInternal), Error: err.Error()}
	}

	messageID, err := s.mailer.Send(ctx, mailer.Message{
		To:          to,
		Subject:     subject,
		HTML:        html,
		Attachments: attachments,
	})
	if err != nil {
		return failedResult(to, err)
	}

	return model.DispatchResult{Recipient: to, Success: true, MessageID: messageID}
}

// resolveRecipients trims, lower-cases and de-duplicates an explicit list,
// or falls back to every member address when the list is empty.
func (s *BroadcastService) resolveRecipients(ctx context.Context, explicit []string) ([]string, error) {
	seen := make(map[string]bool, len(explicit))
	var out []string
	for _, r := range explicit {
		addr := util.NormalizeAddress(r)
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	if len(out) > 0 {
		return out, nil
	}

	all, err := s.accounts.ListEmailsByRole(ctx, model.RoleUser)
	if err != nil {
		return nil, apperrors.StorageUnavailable(err)
	}
	for _, addr := range all {
		addr = util.NormalizeAddress(addr)
		if addr != "" && !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out, nil
}

// displayNames maps each recipient to its account name, falling back to the
// local part of the address.
func (s *BroadcastService) displayNames(ctx context.Context, recipients []string) (map[string]string, error) {
	accounts, err := s.accounts.FindByEmails(ctx, recipients)
	if err != nil {
		return nil, apperrors.StorageUnavailable(err)
	}

	names := make(map[string]string, len(recipients))
	for _, a := range accounts {
		if a.DisplayName != "" {
			names[util.NormalizeAddress(a.Email)] = a.DisplayName
		}
	}
	for _, r := range recipients {
		if names[r] == "" {
			names[r] = util.LocalPart(r)
		}
	}
	return names, nil
}

func (s *BroadcastService) publish(ctx context.Context, operatorID, eventType string, data any) {
	if s.progress == nil || operatorID == "" {
		return
	}
	event, err := sse.NewEvent(eventType, data)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode progress event")
		return
	}
	if err := s.progress.Publish(context.WithoutCancel(ctx), operatorID, event); err != nil {
		log.Debug().Err(err).Str("operatorId", operatorID).Msg("failed to publish progress event")
	}
}

// History lists audit records, newest first.
func (s *BroadcastService) History(ctx context.Context, limit, offset int) ([]model.Broadcast, int, error) {
	items, err := s.broadcasts.FindAll(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperrors.StorageUnavailable(err)
	}
	total, err := s.broadcasts.Count(ctx)
	if err != nil {
		return nil, 0, apperrors.StorageUnavailable(err)
	}
	return items, total, nil
}

func (s *BroadcastService) Get(ctx context.Context, id string) (*model.Broadcast, error) {
	b, err := s.broadcasts.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.StorageUnavailable(err)
	}
	if b == nil {
		return nil, apperrors.NotFound("Broadcast")
	}
	return b, nil
}

func cleanLinks(links []string) []string {
	var out []string
	for _, l := range links {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func failedResult(to string, err error) model.DispatchResult {
	return model.DispatchResult{
		Recipient: to,
		Code:      string(apperrors.GetCode(err)),
		Error:     sendErrorMessage(err),
	}
}

// sendErrorMessage keeps the per-recipient error short and free of the
// wrapped transport chain.
func sendErrorMessage(err error) string {
	if appErr, ok := apperrors.AsAppError(err); ok {
		if cause := appErr.Unwrap(); cause != nil {
			return appErr.Message + ": " + cause.Error()
		}
		return appErr.Message
	}
	return err.Error()
}
