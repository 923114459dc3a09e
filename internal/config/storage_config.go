package config

import "github.com/spf13/viper"

const (
	databaseURLVar    = "DATABASE_URL"
	dbMaxConnsVar     = "DB_MAX_CONNS"
	migrateOnStartVar = "MIGRATE_ON_START"
	redisURLVar       = "REDIS_URL"
	sessionBackendVar = "SESSION_BACKEND"
	userBackendVar    = "USER_BACKEND"
)

// Backend names accepted by SESSION_BACKEND and USER_BACKEND
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type StorageConfig interface {
	GetDatabaseURL() string
	GetDBMaxConns() int32
	GetMigrateOnStart() bool
	GetRedisURL() string
	GetSessionBackend() string
	GetUserBackend() string
}

type Storage struct {
	v *viper.Viper
}

var _ StorageConfig = Storage{}

func (s Storage) GetDatabaseURL() string {
	return s.v.GetString(databaseURLVar)
}

func (s Storage) GetDBMaxConns() int32 {
	return s.v.GetInt32(dbMaxConnsVar)
}

func (s Storage) GetMigrateOnStart() bool {
	return s.v.GetBool(migrateOnStartVar)
}

func (s Storage) GetRedisURL() string {
	return s.v.GetString(redisURLVar)
}

func (s Storage) GetSessionBackend() string {
	return s.v.GetString(sessionBackendVar)
}

func (s Storage) GetUserBackend() string {
	return s.v.GetString(userBackendVar)
}
