package service

import (
	"context"

	"ai-factcheck-be/internal/dto"
	"ai-factcheck-be/internal/entity"
	"ai-factcheck-be/pkg/llm"
	"ai-factcheck-be/pkg/prompt"
	"ai-factcheck-be/pkg/session"

	"github.com/google/uuid"
)

// sessionPersister lets the session engine write through the persistence
// service without knowing about dto or entity types.
type sessionPersister struct {
	persistence IPersistenceService
}

func NewSessionPersister(persistence IPersistenceService) session.Persister {
	return &sessionPersister{persistence: persistence}
}

func (p *sessionPersister) PersistInitialTurn(ctx context.Context, turn session.InitialTurn) (uuid.UUID, error) {
	id, _, err := p.persistence.PersistInitialTurn(ctx,
		&dto.CreateAnalysisInput{
			Query:      turn.Query,
			ReportType: string(turn.ReportType),
			ModelId:    turn.ModelID,
			ImageRef:   turn.ImageRef,
			OwnerId:    turn.OwnerID,
		},
		toTurnInput(turn.Turn),
	)
	return id, err
}

func (p *sessionPersister) AppendTurn(ctx context.Context, analysisID uuid.UUID, turn session.Turn) error {
	_, err := p.persistence.AppendTurn(ctx, analysisID, toTurnInput(turn))
	return err
}

func (p *sessionPersister) LoadConversation(ctx context.Context, analysisID uuid.UUID) (*session.Conversation, error) {
	analysis, err := p.persistence.LoadAnalysis(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	history, err := p.persistence.LoadHistory(ctx, analysisID)
	if err != nil {
		return nil, err
	}

	conv := &session.Conversation{
		AnalysisID: analysis.Id,
		ReportType: prompt.ReportType(analysis.ReportType),
		ModelID:    analysis.ModelIdUsed,
		Messages:   make([]session.DisplayMessage, 0, len(history)),
	}
	if analysis.OwnerId != nil {
		conv.OwnerID = *analysis.OwnerId
	}
	if analysis.UserQueryText != nil {
		conv.Query = *analysis.UserQueryText
	}
	if analysis.UserImageRef != nil {
		conv.ImageRef = *analysis.UserImageRef
	}

	for _, m := range history {
		msg := session.DisplayMessage{
			ID:        m.Id.String(),
			Sender:    session.Sender(m.SenderType),
			Text:      m.MessageText,
			CreatedAt: m.Timestamp,
		}
		if m.ModelIdUsed != nil {
			msg.ModelID = *m.ModelIdUsed
		}
		for _, src := range m.GroundingSources {
			msg.Citations = append(msg.Citations, llm.Source{Title: src.Title, URI: src.URI})
		}
		conv.Messages = append(conv.Messages, msg)
	}
	return conv, nil
}

func toTurnInput(t session.Turn) *dto.TurnInput {
	in := &dto.TurnInput{
		UserText:      t.UserText,
		AssistantText: t.AssistantText,
		ModelId:       t.ModelID,
	}
	for _, c := range t.Citations {
		in.Citations = append(in.Citations, entity.Source{Title: c.Title, URI: c.URI})
	}
	return in
}
