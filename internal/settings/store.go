package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidType = errors.New("settings: value does not match type")
	ErrUnknownKey  = errors.New("settings: key is required")
)

type Setting struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	Key         string    `gorm:"column:setting_key;type:varchar(100);uniqueIndex;not null" json:"key"`
	Value       string    `gorm:"column:setting_value;type:text;not null" json:"-"`
	Type        ValueType `gorm:"column:setting_type;type:varchar(16);not null" json:"type"`
	Description string    `gorm:"type:text" json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Setting) TableName() string { return "chat_settings" }

// Entry is a decoded setting as returned by All.
type Entry struct {
	Value       any       `json:"value"`
	Type        ValueType `json:"type"`
	Description string    `json:"description"`
}

// Store is the typed settings repository. It keeps its own gorm session so
// settings reads never join a conversation transaction.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewStore(db *gorm.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db.Session(&gorm.Session{NewDB: true}),
		log: log,
	}
}

// Get never fails. Missing rows resolve to the documented default for known
// keys and to def otherwise; read or decode errors do the same.
func (s *Store) Get(ctx context.Context, key string, def any) any {
	fallback := def
	if d, ok := lookupDefault(key); ok {
		fallback = d.Value
	}

	var rows []Setting
	if err := s.db.WithContext(ctx).Where("setting_key = ?", key).Limit(1).Find(&rows).Error; err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("settings read failed, using default")
		return fallback
	}
	if len(rows) == 0 {
		return fallback
	}

	v, err := decode(rows[0].Value, rows[0].Type)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("settings decode failed, using default")
		return fallback
	}
	return v
}

func (s *Store) GetString(ctx context.Context, key, def string) string {
	switch v := s.Get(ctx, key, def).(type) {
	case string:
		return v
	case nil:
		return def
	default:
		return fmt.Sprint(v)
	}
}

func (s *Store) GetBool(ctx context.Context, key string, def bool) bool {
	if v, ok := s.Get(ctx, key, def).(bool); ok {
		return v
	}
	return def
}

func (s *Store) GetFloat(ctx context.Context, key string, def float64) float64 {
	switch v := s.Get(ctx, key, def).(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func (s *Store) GetInt(ctx context.Context, key string, def int) int {
	return int(s.GetFloat(ctx, key, float64(def)))
}

// Set stores value under key. An empty typ is inferred from the value.
func (s *Store) Set(ctx context.Context, key string, value any, typ ValueType, description string) (*Setting, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrUnknownKey
	}
	raw, typ, err := encode(value, typ)
	if err != nil {
		return nil, err
	}

	row := Setting{Key: key, Value: raw, Type: typ, Description: description}
	updates := []string{"setting_value", "setting_type", "updated_at"}
	if description != "" {
		updates = append(updates, "description")
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Store) All(ctx context.Context) (map[string]Entry, error) {
	var rows []Setting
	if err := s.db.WithContext(ctx).Order("setting_key ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]Entry, len(rows))
	for _, r := range rows {
		v, err := decode(r.Value, r.Type)
		if err != nil {
			s.log.Warn().Err(err).Str("key", r.Key).Msg("skipping undecodable setting")
			continue
		}
		out[r.Key] = Entry{Value: v, Type: r.Type, Description: r.Description}
	}
	return out, nil
}

// InitializeDefaults inserts every documented default that has no row yet.
func (s *Store) InitializeDefaults(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, d := range Defaults {
			raw, typ, err := encode(d.Value, d.Type)
			if err != nil {
				return err
			}
			row := Setting{Key: d.Key, Value: raw, Type: typ, Description: d.Description}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ResetToDefaults drops every stored setting and reinserts the defaults.
func (s *Store) ResetToDefaults(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Setting{}).Error; err != nil {
		return err
	}
	return s.InitializeDefaults(ctx)
}

// Public returns the settings the chat widget renders.
func (s *Store) Public(ctx context.Context) map[string]any {
	out := make(map[string]any, len(PublicKeys))
	for _, k := range PublicKeys {
		out[k] = s.Get(ctx, k, nil)
	}
	return out
}

func decode(raw string, typ ValueType) (any, error) {
	switch typ {
	case TypeBoolean:
		return strings.EqualFold(strings.TrimSpace(raw), "true"), nil
	case TypeNumber:
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	case TypeJSON:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return raw, nil
	}
}

func encode(value any, typ ValueType) (string, ValueType, error) {
	if typ == "" {
		typ = inferType(value)
	}
	if !typ.Valid() {
		return "", "", fmt.Errorf("%w: unknown type %q", ErrInvalidType, typ)
	}

	switch typ {
	case TypeBoolean:
		switch v := value.(type) {
		case bool:
			return strconv.FormatBool(v), typ, nil
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return strconv.FormatBool(b), typ, nil
			}
		}
	case TypeNumber:
		switch v := value.(type) {
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), typ, nil
		case float32:
			return strconv.FormatFloat(float64(v), 'f', -1, 32), typ, nil
		case int:
			return strconv.Itoa(v), typ, nil
		case int64:
			return strconv.FormatInt(v, 10), typ, nil
		case json.Number:
			return v.String(), typ, nil
		case string:
			if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return strings.TrimSpace(v), typ, nil
			}
		}
	case TypeJSON:
		b, err := json.Marshal(value)
		if err != nil {
			return "", "", fmt.Errorf("%w: %w", ErrInvalidType, err)
		}
		return string(b), typ, nil
	case TypeString:
		if v, ok := value.(string); ok {
			return v, typ, nil
		}
	}
	return "", "", fmt.Errorf("%w: %T is not %s", ErrInvalidType, value, typ)
}

func inferType(value any) ValueType {
	switch value.(type) {
	case bool:
		return TypeBoolean
	case float64, float32, int, int64, json.Number:
		return TypeNumber
	case map[string]any, []any:
		return TypeJSON
	default:
		return TypeString
	}
}
