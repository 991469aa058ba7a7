package settings

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	gormsqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&Setting{}))
	return NewStore(gdb, zerolog.Nop())
}

func TestGet_MissingRowUsesDocumentedDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.Equal(t, 0.7, s.Get(ctx, KeyTemperature, 1.5))
	require.Equal(t, "fallback", s.Get(ctx, "not_a_setting", "fallback"))
	require.False(t, s.GetBool(ctx, KeyEnableLeadGate, true))
	require.Equal(t, 3, s.GetInt(ctx, KeyRAGChunkLimit, 9))
}

func TestSetAndGet_TypedRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Set(ctx, KeyEnableLeadGate, true, "", "")
	require.NoError(t, err)
	_, err = s.Set(ctx, KeyTemperature, 1.2, "", "")
	require.NoError(t, err)
	_, err = s.Set(ctx, "widget_colors", map[string]any{"primary": "#003"}, "", "colors")
	require.NoError(t, err)

	require.True(t, s.GetBool(ctx, KeyEnableLeadGate, false))
	require.InDelta(t, 1.2, s.GetFloat(ctx, KeyTemperature, 0), 1e-9)
	require.Equal(t, map[string]any{"primary": "#003"}, s.Get(ctx, "widget_colors", nil))

	// overwrite keeps a single row
	_, err = s.Set(ctx, KeyEnableLeadGate, false, "", "")
	require.NoError(t, err)
	require.False(t, s.GetBool(ctx, KeyEnableLeadGate, true))

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, TypeJSON, all["widget_colors"].Type)
}

func TestSet_RejectsMismatchedType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Set(ctx, KeyMaxTokens, "lots", TypeNumber, "")
	require.ErrorIs(t, err, ErrInvalidType)

	_, err = s.Set(ctx, KeyEnableRAG, 3.0, TypeBoolean, "")
	require.ErrorIs(t, err, ErrInvalidType)

	_, err = s.Set(ctx, "  ", "x", "", "")
	require.ErrorIs(t, err, ErrUnknownKey)

	_, err = s.Set(ctx, KeyMaxTokens, "512", TypeNumber, "")
	require.NoError(t, err)
	require.Equal(t, 512, s.GetInt(ctx, KeyMaxTokens, 0))
}

func TestInitializeAndReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Set(ctx, KeyChatTitle, "Custom", "", "")
	require.NoError(t, err)
	require.NoError(t, s.InitializeDefaults(ctx))

	// existing rows survive initialization
	require.Equal(t, "Custom", s.GetString(ctx, KeyChatTitle, ""))
	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, len(Defaults))

	require.NoError(t, s.ResetToDefaults(ctx))
	require.Equal(t, "Fiat Clarity Chat", s.GetString(ctx, KeyChatTitle, ""))
}

func TestTurnSettings_OutOfRangeFallsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Set(ctx, KeyTemperature, 5.0, "", "")
	require.NoError(t, err)
	_, err = s.Set(ctx, KeyMaxTokens, 100000.0, "", "")
	require.NoError(t, err)
	_, err = s.Set(ctx, KeyRAGChunkLimit, 0.0, "", "")
	require.NoError(t, err)
	_, err = s.Set(ctx, KeyEnableCitations, false, "", "")
	require.NoError(t, err)

	ts := s.TurnSettings(ctx)
	require.InDelta(t, 0.7, ts.Temperature, 1e-6)
	require.Equal(t, 1000, ts.MaxTokens)
	require.Equal(t, 3, ts.RAGChunkLimit)
	require.False(t, ts.EnableCitations)
	require.True(t, ts.EnableRAG)
	require.Equal(t, DefaultSystemPrompt, ts.SystemPrompt)
	require.Equal(t, DefaultLeadGateMessage, ts.LeadGateMessage)
}

func TestPublic_OnlyWidgetKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Set(ctx, KeyOpenAIAPIKey, "sk-secret", "", "")
	require.NoError(t, err)

	pub := s.Public(ctx)
	require.NotContains(t, pub, KeyOpenAIAPIKey)
	require.Equal(t, "Schedule a Clarity Call", pub[KeyScheduleButtonText])
	require.Equal(t, false, pub[KeyEnableLeadGate])
}

func TestGet_DatabaseErrorUsesDefault(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT .* FROM `chat_settings`").WillReturnError(errors.New("connection reset"))
	mock.ExpectQuery("SELECT .* FROM `chat_settings`").WillReturnError(errors.New("connection reset"))

	s := NewStore(gdb, zerolog.Nop())
	ctx := context.Background()
	require.Equal(t, 1000.0, s.Get(ctx, KeyMaxTokens, nil))
	require.Equal(t, "x", s.Get(ctx, "unknown_key", "x"))
	require.NoError(t, mock.ExpectationsWereMet())
}
