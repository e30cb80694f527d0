package model

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// Ensure gofakeit is seeded. It might already be seeded by factories.go's init,
// but adding it here ensures this file is self-sufficient if used independently.
func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// --- NATS Payload Factories ---

// NewInboundMessagePayload creates an InboundMessagePayload with default fake data.
func NewInboundMessagePayload(overrideDefaults ...*InboundMessagePayload) *InboundMessagePayload {
	base := &InboundMessagePayload{
		ChannelID:         gofakeit.DigitN(15),
		SenderID:          gofakeit.Phone(),
		SenderName:        gofakeit.Name(),
		ProviderMessageID: "wamid." + gofakeit.LetterN(20),
		MessageBody:       gofakeit.Sentence(6),
		MsgType:           "text",
		MsgFromType:       MsgFromCustomer,
		AppName:           PlatformWhatsApp,
		OrganizationID:    "org_" + gofakeit.LetterN(10),
		Timestamp:         time.Now().Unix(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ChannelID != "" {
			base.ChannelID = ovr.ChannelID
		}
		if ovr.SenderID != "" {
			base.SenderID = ovr.SenderID
		}
		if ovr.SenderName != "" {
			base.SenderName = ovr.SenderName
		}
		if ovr.ProviderMessageID != "" {
			base.ProviderMessageID = ovr.ProviderMessageID
		}
		if ovr.MessageBody != "" {
			base.MessageBody = ovr.MessageBody
		}
		if ovr.Subject != "" {
			base.Subject = ovr.Subject
		}
		if ovr.MsgType != "" {
			base.MsgType = ovr.MsgType
		}
		if ovr.MediaID != "" {
			base.MediaID = ovr.MediaID
		}
		if len(ovr.Attachments) > 0 {
			base.Attachments = ovr.Attachments
		}
		if ovr.AppName != "" {
			base.AppName = ovr.AppName
		}
		if ovr.OrganizationID != "" {
			base.OrganizationID = ovr.OrganizationID
		}
		if ovr.Timestamp != 0 {
			base.Timestamp = ovr.Timestamp
		}
	}

	return base
}

// NewStatusEventPayload creates a StatusEventPayload with default fake data.
func NewStatusEventPayload(overrideDefaults ...*StatusEventPayload) *StatusEventPayload {
	base := &StatusEventPayload{
		ChannelID:      gofakeit.DigitN(15),
		RecipientID:    gofakeit.Phone(),
		MessageID:      "wamid." + gofakeit.LetterN(20),
		MessageStatus:  UserMessageStatusDelivered,
		MsgFromType:    MsgFromOrg,
		AppName:        PlatformWhatsApp,
		OrganizationID: "org_" + gofakeit.LetterN(10),
		Timestamp:      time.Now().Unix(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ChannelID != "" {
			base.ChannelID = ovr.ChannelID
		}
		if ovr.RecipientID != "" {
			base.RecipientID = ovr.RecipientID
		}
		if ovr.MessageID != "" {
			base.MessageID = ovr.MessageID
		}
		if ovr.MessageStatus != "" {
			base.MessageStatus = ovr.MessageStatus
		}
		if ovr.ErrorDetails != "" {
			base.ErrorDetails = ovr.ErrorDetails
		}
		if ovr.AppName != "" {
			base.AppName = ovr.AppName
		}
		if ovr.OrganizationID != "" {
			base.OrganizationID = ovr.OrganizationID
		}
		if ovr.Timestamp != 0 {
			base.Timestamp = ovr.Timestamp
		}
	}

	return base
}
