package database

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMongoDatabaseName(t *testing.T) {
	assert.Equal(t, "chat", mongoDatabaseName("mongodb://localhost:27017/chat"))
	assert.Equal(t, "chat", mongoDatabaseName("mongodb+srv://u:p@cluster.example.net/chat?retryWrites=true"))
	assert.Equal(t, defaultMongoDatabase, mongoDatabaseName("mongodb://localhost:27017"))
	assert.Equal(t, defaultMongoDatabase, mongoDatabaseName("mongodb://localhost:27017/?tls=true"))
}

func TestSchemaTimestampsCarryTimeZone(t *testing.T) {
	tz := regexp.MustCompile(`\bTIMESTAMP\b`)
	for _, stmt := range Schema {
		assert.False(t, tz.MatchString(stmt), "timestamp without time zone in:\n%s", stmt)
	}
	assert.Contains(t, strings.Join(Schema, "\n"), "expires_at TIMESTAMPTZ NOT NULL")
}
