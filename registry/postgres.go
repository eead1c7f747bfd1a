package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS subscribers (
		subscriber_id VARCHAR(256) PRIMARY KEY,
		subscriber_url VARCHAR(512) NOT NULL,
		type VARCHAR(8) NOT NULL,
		domain VARCHAR(64) NOT NULL,
		city VARCHAR(64) NOT NULL DEFAULT '',
		country VARCHAR(8) NOT NULL DEFAULT '',
		signing_public_key VARCHAR(128) NOT NULL,
		ukid VARCHAR(128) NOT NULL,
		status VARCHAR(32) NOT NULL,
		challenge VARCHAR(128) NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_subscribers_domain_city ON subscribers(domain, city, type);
	CREATE INDEX IF NOT EXISTS idx_subscribers_status ON subscribers(status);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Save persists a subscriber record.
func (s *PostgresStore) Save(ctx context.Context, sub *Subscriber) error {
	query := `
	INSERT INTO subscribers
		(subscriber_id, subscriber_url, type, domain, city, country, signing_public_key, ukid, status, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	ON CONFLICT (subscriber_id) DO UPDATE SET
		subscriber_url = EXCLUDED.subscriber_url,
		type = EXCLUDED.type,
		domain = EXCLUDED.domain,
		city = EXCLUDED.city,
		country = EXCLUDED.country,
		signing_public_key = EXCLUDED.signing_public_key,
		ukid = EXCLUDED.ukid,
		status = EXCLUDED.status,
		updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		sub.SubscriberID,
		sub.SubscriberURL,
		string(sub.Role),
		sub.Domain,
		sub.City,
		sub.Country,
		sub.SigningKey,
		sub.UniqueKeyID,
		string(sub.Status),
	)
	return err
}

// Get returns the record for subscriberID.
func (s *PostgresStore) Get(ctx context.Context, subscriberID string) (*Subscriber, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT subscriber_id, subscriber_url, type, domain, city, country, signing_public_key, ukid, status
		FROM subscribers WHERE subscriber_id = $1
	`, subscriberID)

	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sub, err
}

// Find returns records matching the (domain, city, role) triple, ordered by
// subscriber id.
func (s *PostgresStore) Find(ctx context.Context, domain, city string, role Role) ([]*Subscriber, error) {
	query := `
		SELECT subscriber_id, subscriber_url, type, domain, city, country, signing_public_key, ukid, status
		FROM subscribers
		WHERE domain = $1 AND type = $2 AND ($3 = '' OR city = $3)
		ORDER BY subscriber_id
	`

	rows, err := s.db.QueryContext(ctx, query, domain, string(role), city)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

// UpdateStatus sets the lifecycle status of a record.
func (s *PostgresStore) UpdateStatus(ctx context.Context, subscriberID string, status Status) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE subscribers SET status = $1, updated_at = NOW() WHERE subscriber_id = $2",
		string(status), subscriberID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveChallenge stores the pending verification challenge.
func (s *PostgresStore) SaveChallenge(ctx context.Context, subscriberID, challenge string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE subscribers SET challenge = $1, updated_at = NOW() WHERE subscriber_id = $2",
		challenge, subscriberID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Challenge returns the pending challenge for a subscriber.
func (s *PostgresStore) Challenge(ctx context.Context, subscriberID string) (string, error) {
	var challenge string
	err := s.db.QueryRowContext(ctx,
		"SELECT challenge FROM subscribers WHERE subscriber_id = $1", subscriberID).Scan(&challenge)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return challenge, err
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row rowScanner) (*Subscriber, error) {
	var (
		sub    Subscriber
		role   string
		status string
	)
	err := row.Scan(&sub.SubscriberID, &sub.SubscriberURL, &role, &sub.Domain,
		&sub.City, &sub.Country, &sub.SigningKey, &sub.UniqueKeyID, &status)
	if err != nil {
		return nil, err
	}
	sub.Role = Role(role)
	sub.Status = Status(status)
	return &sub, nil
}
