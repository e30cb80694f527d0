package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/datatypes"

	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
)

// RandomJSONB generates random JSON data for testing.
func RandomJSONB() datatypes.JSON {
	jsonData := map[string]interface{}{
		"stub_key": gofakeit.Word(),
		"stub_num": gofakeit.Number(1, 100),
	}
	bytes, _ := json.Marshal(jsonData)
	return datatypes.JSON(bytes)
}

// RandomJSONBMap generates JSON data from a map for testing.
func RandomJSONBMap(data map[string]interface{}) datatypes.JSON {
	bytes, _ := json.Marshal(data)
	return datatypes.JSON(bytes)
}

// init ensures gofakeit is seeded.
func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// NewContact creates a new Contact instance with default fake data.
func NewContact(overrideDefaults ...*Contact) *Contact {
	base := &Contact{
		ID:             gofakeit.UUID(),
		Name:           gofakeit.Name(),
		Address:        gofakeit.Phone(),
		PlatformName:   PlatformWhatsApp,
		OrganizationID: "org_" + gofakeit.LetterN(10),
		Avatar:         gofakeit.URL(),
		CreatedAt:      utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Hour),
		UpdatedAt:      utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.Name != "" {
			base.Name = ovr.Name
		}
		if ovr.Address != "" {
			base.Address = ovr.Address
		}
		if ovr.PlatformName != "" {
			base.PlatformName = ovr.PlatformName
		}
		if ovr.OrganizationID != "" {
			base.OrganizationID = ovr.OrganizationID
		}
		if ovr.Avatar != "" {
			base.Avatar = ovr.Avatar
		}
		if ovr.ProfileSyncAt != nil {
			base.ProfileSyncAt = ovr.ProfileSyncAt
		}
	}

	return base
}

// NewPlatform creates a new Platform instance with default fake data.
func NewPlatform(overrideDefaults ...*Platform) *Platform {
	base := &Platform{
		ID:             gofakeit.UUID(),
		Name:           PlatformWhatsApp,
		LoginID:        fmt.Sprintf("%d", gofakeit.Number(100000000000000, 999999999999999)),
		AppID:          gofakeit.UUID(),
		SecretKey:      gofakeit.LetterN(32),
		AccessToken:    gofakeit.LetterN(64),
		OrganizationID: "org_" + gofakeit.LetterN(10),
		Active:         true,
		CreatedAt:      utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Hour),
		UpdatedAt:      utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.Name != "" {
			base.Name = ovr.Name
		}
		if ovr.LoginID != "" {
			base.LoginID = ovr.LoginID
		}
		if ovr.SecretKey != "" {
			base.SecretKey = ovr.SecretKey
		}
		if ovr.AccessToken != "" {
			base.AccessToken = ovr.AccessToken
		}
		if ovr.OrganizationID != "" {
			base.OrganizationID = ovr.OrganizationID
		}
	}

	return base
}

// NewConversation creates a new Conversation instance with default fake data.
func NewConversation(overrideDefaults ...*Conversation) *Conversation {
	base := &Conversation{
		ID:             gofakeit.UUID(),
		ContactID:      gofakeit.UUID(),
		PlatformID:     gofakeit.UUID(),
		OrganizationID: "org_" + gofakeit.LetterN(10),
		Status:         ConversationStatusNew,
		OpenBy:         OpenByCustomer,
		CreatedAt:      utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Minute),
		UpdatedAt:      utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.ContactID != "" {
			base.ContactID = ovr.ContactID
		}
		if ovr.PlatformID != "" {
			base.PlatformID = ovr.PlatformID
		}
		if ovr.OrganizationID != "" {
			base.OrganizationID = ovr.OrganizationID
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		if ovr.OpenBy != "" {
			base.OpenBy = ovr.OpenBy
		}
		if ovr.ClosedReason != "" {
			base.ClosedReason = ovr.ClosedReason
		}
	}

	return base
}

// NewIncomingMessage creates a new IncomingMessage instance with default fake data.
func NewIncomingMessage(overrideDefaults ...*IncomingMessage) *IncomingMessage {
	base := &IncomingMessage{
		ProviderMessageID: "wamid." + gofakeit.LetterN(20),
		ConversationID:    gofakeit.UUID(),
		ContactID:         gofakeit.UUID(),
		PlatformID:        gofakeit.UUID(),
		OrganizationID:    "org_" + gofakeit.LetterN(10),
		MessageType:       "text",
		MessageBody:       gofakeit.Sentence(8),
		Status:            IncomingStatusUnread,
		ReceivedAt:        utils.Now(),
		CreatedAt:         utils.Now(),
		UpdatedAt:         utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ProviderMessageID != "" {
			base.ProviderMessageID = ovr.ProviderMessageID
		}
		if ovr.ConversationID != "" {
			base.ConversationID = ovr.ConversationID
		}
		if ovr.ContactID != "" {
			base.ContactID = ovr.ContactID
		}
		if ovr.PlatformID != "" {
			base.PlatformID = ovr.PlatformID
		}
		if ovr.OrganizationID != "" {
			base.OrganizationID = ovr.OrganizationID
		}
		if ovr.MessageType != "" {
			base.MessageType = ovr.MessageType
		}
		if ovr.MessageBody != "" {
			base.MessageBody = ovr.MessageBody
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
	}

	return base
}

// NewUserMessage creates a new UserMessage instance with default fake data.
func NewUserMessage(overrideDefaults ...*UserMessage) *UserMessage {
	base := &UserMessage{
		ProviderMessageID: "wamid." + gofakeit.LetterN(20),
		ConversationID:    gofakeit.UUID(),
		ContactID:         gofakeit.UUID(),
		PlatformID:        gofakeit.UUID(),
		OrganizationID:    "org_" + gofakeit.LetterN(10),
		MessageType:       "text",
		MessageBody:       gofakeit.Sentence(8),
		Status:            UserMessageStatusSentToServer,
		SentAt:            utils.Now(),
		CreatedAt:         utils.Now(),
		UpdatedAt:         utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ProviderMessageID != "" {
			base.ProviderMessageID = ovr.ProviderMessageID
		}
		if ovr.ConversationID != "" {
			base.ConversationID = ovr.ConversationID
		}
		if ovr.ContactID != "" {
			base.ContactID = ovr.ContactID
		}
		if ovr.PlatformID != "" {
			base.PlatformID = ovr.PlatformID
		}
		if ovr.OrganizationID != "" {
			base.OrganizationID = ovr.OrganizationID
		}
		if ovr.ScheduledMessageID != nil {
			base.ScheduledMessageID = ovr.ScheduledMessageID
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		if ovr.StatusDetails != "" {
			base.StatusDetails = ovr.StatusDetails
		}
	}

	return base
}

// NewScheduledMessage creates a new ScheduledMessage instance with default fake data.
func NewScheduledMessage(overrideDefaults ...*ScheduledMessage) *ScheduledMessage {
	base := &ScheduledMessage{
		ID:             int64(gofakeit.Number(1, 1_000_000)),
		OrganizationID: "org_" + gofakeit.LetterN(10),
		PlatformID:     gofakeit.UUID(),
		RecipientType:  RecipientIndividual,
		ContactID:      gofakeit.UUID(),
		Frequency:      FrequencyOnce,
		MessageType:    "text",
		MessageBody:    gofakeit.Sentence(10),
		Status:         ScheduleStatusScheduled,
		ScheduledTime:  utils.Now().Add(-time.Minute),
		CreatedAt:      utils.Now().Add(-time.Hour),
		UpdatedAt:      utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != 0 {
			base.ID = ovr.ID
		}
		if ovr.OrganizationID != "" {
			base.OrganizationID = ovr.OrganizationID
		}
		if ovr.PlatformID != "" {
			base.PlatformID = ovr.PlatformID
		}
		if ovr.RecipientType != "" {
			base.RecipientType = ovr.RecipientType
		}
		if ovr.ContactID != "" {
			base.ContactID = ovr.ContactID
		}
		if ovr.GroupID != "" {
			base.GroupID = ovr.GroupID
			base.RecipientType = RecipientGroup
		}
		if ovr.Frequency != 0 {
			base.Frequency = ovr.Frequency
		}
		if ovr.MessageType != "" {
			base.MessageType = ovr.MessageType
		}
		if ovr.MessageBody != "" {
			base.MessageBody = ovr.MessageBody
		}
		if ovr.TemplateName != "" {
			base.TemplateName = ovr.TemplateName
		}
		if ovr.TemplateText != "" {
			base.TemplateText = ovr.TemplateText
		}
		if ovr.DatasourceID != nil {
			base.DatasourceID = ovr.DatasourceID
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		if !ovr.ScheduledTime.IsZero() {
			base.ScheduledTime = ovr.ScheduledTime
		}
	}

	return base
}

// NewGmailAccount creates a new GmailAccount instance with default fake data.
func NewGmailAccount(overrideDefaults ...*GmailAccount) *GmailAccount {
	base := &GmailAccount{
		ID:             gofakeit.UUID(),
		OrganizationID: "org_" + gofakeit.LetterN(10),
		EmailAddress:   gofakeit.Email(),
		AccessToken:    gofakeit.LetterN(64),
		RefreshToken:   gofakeit.LetterN(64),
		TokenExpiry:    utils.Now().Add(time.Hour),
		HistoryID:      uint64(gofakeit.Number(1000, 100000)),
		Active:         true,
		CreatedAt:      utils.Now().Add(-24 * time.Hour),
		UpdatedAt:      utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.OrganizationID != "" {
			base.OrganizationID = ovr.OrganizationID
		}
		if ovr.EmailAddress != "" {
			base.EmailAddress = ovr.EmailAddress
		}
		if ovr.HistoryID != 0 {
			base.HistoryID = ovr.HistoryID
		}
		if !ovr.TokenExpiry.IsZero() {
			base.TokenExpiry = ovr.TokenExpiry
		}
	}

	return base
}
