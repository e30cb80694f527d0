package storage

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	apperrors "gitlab.com/jackdesk/api/bcast-conversation-hub/internal/apperrors"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
)

func TestPostgresRepo_CreateIncomingMessage_Success(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := testContext(t)

	msg := model.IncomingMessage{
		ProviderMessageID: "wamid.incoming-1",
		ConversationID:    "conv-1",
		ContactID:         "contact-1",
		PlatformID:        "platform-1",
		OrganizationID:    testOrganizationID,
		MessageType:       "text",
		MessageBody:       "hello there",
		Status:            model.IncomingStatusUnread,
		ReceivedAt:        time.Now().UTC(),
		LastMetadata:      datatypes.JSON(utils.MustMarshalJSON(map[string]interface{}{"stream_sequence": 42})),
	}

	insertQuery := `INSERT INTO "incoming_messages" ("provider_message_id","conversation_id","contact_id","platform_id","organization_id","message_type","message_body","subject","media_url","status","received_at","created_at","updated_at","last_metadata") VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING "id"`
	mock.ExpectQuery(insertQuery).
		WithArgs(
			msg.ProviderMessageID, msg.ConversationID, msg.ContactID, msg.PlatformID, msg.OrganizationID,
			msg.MessageType, msg.MessageBody, "", "", msg.Status,
			msg.ReceivedAt, AnyTime{}, AnyTime{}, msg.LastMetadata,
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(101))

	saved, err := repo.CreateIncomingMessage(ctx, msg)
	assert.NoError(t, err)
	assert.NotNil(t, saved)
	assert.Equal(t, int64(101), saved.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_CreateIncomingMessage_Duplicate(t *testing.T) {
	// Redelivery of an already-persisted event hits the provider-id unique
	// index; the caller treats ErrDuplicate as success.
	repo, mock := newTestRepo(t)
	ctx := testContext(t)

	msg := model.IncomingMessage{
		ProviderMessageID: "wamid.incoming-dup",
		ConversationID:    "conv-1",
		ContactID:         "contact-1",
		PlatformID:        "platform-1",
		OrganizationID:    testOrganizationID,
		Status:            model.IncomingStatusUnread,
		ReceivedAt:        time.Now().UTC(),
	}

	insertQuery := `INSERT INTO "incoming_messages" ("provider_message_id","conversation_id","contact_id","platform_id","organization_id","message_type","message_body","subject","media_url","status","received_at","created_at","updated_at","last_metadata") VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING "id"`
	mock.ExpectQuery(insertQuery).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_incoming_messages_provider_id"})

	saved, err := repo.CreateIncomingMessage(ctx, msg)
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDuplicate)
	assert.Nil(t, saved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_CreateIncomingMessage_TenantMismatch(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := testContext(t)

	msg := model.IncomingMessage{
		ProviderMessageID: "wamid.wrong-org",
		OrganizationID:    "some-other-org",
	}

	saved, err := repo.CreateIncomingMessage(ctx, msg)
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
	assert.Nil(t, saved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_MarkIncomingMessagesResponded(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := testContext(t)

	updateQuery := `UPDATE "incoming_messages" SET "status"=$1,"updated_at"=$2 WHERE conversation_id = $3 AND organization_id = $4 AND status IN ($5,$6)`
	mock.ExpectExec(updateQuery).
		WithArgs(model.IncomingStatusResponded, AnyTime{}, "conv-responded", testOrganizationID, model.IncomingStatusUnread, model.IncomingStatusRead).
		WillReturnResult(sqlmock.NewResult(0, 3))

	err := repo.MarkIncomingMessagesResponded(ctx, "conv-responded")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_MarkIncomingMessagesResponded_NothingToUpdate(t *testing.T) {
	// Zero rows means every message was already responded; not an error.
	repo, mock := newTestRepo(t)
	ctx := testContext(t)

	updateQuery := `UPDATE "incoming_messages" SET "status"=$1,"updated_at"=$2 WHERE conversation_id = $3 AND organization_id = $4 AND status IN ($5,$6)`
	mock.ExpectExec(updateQuery).
		WithArgs(model.IncomingStatusResponded, AnyTime{}, "conv-empty", testOrganizationID, model.IncomingStatusUnread, model.IncomingStatusRead).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkIncomingMessagesResponded(ctx, "conv-empty")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_CreateUserMessage_Success(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := testContext(t)

	scheduleID := int64(7)
	msg := model.UserMessage{
		ProviderMessageID:  "wamid.user-1",
		ConversationID:     "conv-2",
		ContactID:          "contact-2",
		PlatformID:         "platform-1",
		OrganizationID:     testOrganizationID,
		ScheduledMessageID: &scheduleID,
		MessageType:        "text",
		MessageBody:        "campaign body",
		Status:             model.UserMessageStatusSentToServer,
		SentAt:             time.Now().UTC(),
	}

	insertQuery := `INSERT INTO "user_messages" ("provider_message_id","conversation_id","contact_id","platform_id","organization_id","scheduled_message_id","message_type","message_body","template_name","template_params","status","status_details","sent_at","created_at","updated_at") VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15) RETURNING "id"`
	mock.ExpectQuery(insertQuery).
		WithArgs(
			msg.ProviderMessageID, msg.ConversationID, msg.ContactID, msg.PlatformID, msg.OrganizationID,
			scheduleID, msg.MessageType, msg.MessageBody, "", nil,
			msg.Status, "", msg.SentAt, AnyTime{}, AnyTime{},
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(202))

	saved, err := repo.CreateUserMessage(ctx, msg)
	assert.NoError(t, err)
	assert.NotNil(t, saved)
	assert.Equal(t, int64(202), saved.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_CreateUserMessage_TenantMismatch(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := testContext(t)

	msg := model.UserMessage{
		ProviderMessageID: "wamid.user-wrong-org",
		OrganizationID:    "some-other-org",
	}

	saved, err := repo.CreateUserMessage(ctx, msg)
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
	assert.Nil(t, saved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_FindUserMessageByProviderID_Found(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := testContext(t)
	now := time.Now()

	cols := []string{"id", "provider_message_id", "conversation_id", "organization_id", "status", "created_at", "updated_at"}
	rows := sqlmock.NewRows(cols).AddRow(303, "wamid.find-1", "conv-3", testOrganizationID, model.UserMessageStatusSent, now.Add(-time.Hour), now.Add(-time.Minute))
	selectQuery := `SELECT * FROM "user_messages" WHERE provider_message_id = $1 AND organization_id = $2 ORDER BY created_at DESC,"user_messages"."id" LIMIT $3`
	mock.ExpectQuery(selectQuery).WithArgs("wamid.find-1", testOrganizationID, 1).WillReturnRows(rows)

	found, err := repo.FindUserMessageByProviderID(ctx, "wamid.find-1")
	assert.NoError(t, err)
	assert.NotNil(t, found)
	assert.Equal(t, int64(303), found.ID)
	assert.Equal(t, model.UserMessageStatusSent, found.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_FindUserMessageByProviderID_NotFound(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := testContext(t)

	selectQuery := `SELECT * FROM "user_messages" WHERE provider_message_id = $1 AND organization_id = $2 ORDER BY created_at DESC,"user_messages"."id" LIMIT $3`
	mock.ExpectQuery(selectQuery).WithArgs("wamid.find-404", testOrganizationID, 1).WillReturnError(gorm.ErrRecordNotFound)

	found, err := repo.FindUserMessageByProviderID(ctx, "wamid.find-404")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Nil(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_FindUserMessageByProviderID_EmptyID(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := testContext(t)

	found, err := repo.FindUserMessageByProviderID(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
	assert.Nil(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_UpdateUserMessageStatus_Success(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := testContext(t)

	updateQuery := `UPDATE "user_messages" SET "status"=$1,"status_details"=$2,"updated_at"=$3 WHERE id = $4 AND organization_id = $5`
	mock.ExpectExec(updateQuery).
		WithArgs(model.UserMessageStatusDelivered, "", AnyTime{}, int64(303), testOrganizationID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateUserMessageStatus(ctx, 303, model.UserMessageStatusDelivered, "")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_UpdateUserMessageStatus_FailedWithDetails(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := testContext(t)

	details := `{"code":131047,"title":"Re-engagement message"}`
	updateQuery := `UPDATE "user_messages" SET "status"=$1,"status_details"=$2,"updated_at"=$3 WHERE id = $4 AND organization_id = $5`
	mock.ExpectExec(updateQuery).
		WithArgs(model.UserMessageStatusFailed, details, AnyTime{}, int64(304), testOrganizationID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateUserMessageStatus(ctx, 304, model.UserMessageStatusFailed, details)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_UpdateUserMessageStatus_NotFound(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := testContext(t)

	updateQuery := `UPDATE "user_messages" SET "status"=$1,"status_details"=$2,"updated_at"=$3 WHERE id = $4 AND organization_id = $5`
	mock.ExpectExec(updateQuery).
		WithArgs(model.UserMessageStatusRead, "", AnyTime{}, int64(999), testOrganizationID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateUserMessageStatus(ctx, 999, model.UserMessageStatusRead, "")
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
