package db

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/gocql/gocql"
)

type Session struct {
	*gocql.Session
}

func NewSession(hosts []string, keyspace string) (*Session, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}

	log.Info("connected to scylla cluster", "hosts", hosts, "keyspace", keyspace)
	return &Session{Session: session}, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id text PRIMARY KEY,
		type text,
		participants list<text>,
		title text,
		last_message text,
		last_message_id bigint,
		last_message_at timestamp,
		created_at timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_keys (
		conv_key text PRIMARY KEY,
		conversation_id text
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_members (
		conversation_id text,
		user_id text,
		unread_count int,
		last_read_at timestamp,
		last_read_id bigint,
		PRIMARY KEY (conversation_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS user_conversations (
		user_id text,
		conversation_id text,
		PRIMARY KEY (user_id, conversation_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		conversation_id text,
		created_at timestamp,
		id bigint,
		sender_id text,
		type text,
		content text,
		media_url text,
		read boolean,
		PRIMARY KEY (conversation_id, created_at, id)
	) WITH CLUSTERING ORDER BY (created_at ASC, id ASC)`,
	`CREATE TABLE IF NOT EXISTS message_index (
		id bigint PRIMARY KEY,
		conversation_id text,
		created_at timestamp
	)`,
}

// Tables lists every table Migrate creates, in creation order.
var Tables = []string{
	"conversations", "conversation_keys", "conversation_members",
	"user_conversations", "messages", "message_index",
}

// CreateKeyspace connects to the system keyspace and creates keyspace when
// it does not exist yet.
func CreateKeyspace(hosts []string, keyspace string) error {
	sys, err := NewSession(hosts, "system")
	if err != nil {
		return err
	}
	defer sys.Close()

	return sys.Query(`CREATE KEYSPACE IF NOT EXISTS ` + keyspace +
		` WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`).Exec()
}

// Migrate creates the conversation tables. Production clusters should run
// this once from scripts/migrate rather than on every boot.
func Migrate(s *Session) error {
	for _, stmt := range schema {
		if err := s.Query(stmt).Exec(); err != nil {
			return err
		}
	}
	log.Info("scylla schema ready")
	return nil
}

// Drop removes every conversation table.
func Drop(s *Session) error {
	for _, table := range Tables {
		log.Info("dropping table", "table", table)
		if err := s.Query("DROP TABLE IF EXISTS " + table).Exec(); err != nil {
			return err
		}
	}
	return nil
}
