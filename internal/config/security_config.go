package config

import "github.com/spf13/viper"

const (
	jwtSecretVar  = "JWT_SECRET"
	bcryptCostVar = "BCRYPT_COST"

	defaultBcryptCost = 10
)

type SecurityConfig interface {
	GetJWTSecret() string
	GetBcryptCost() int
}

type Security struct {
	v *viper.Viper
}

var _ SecurityConfig = Security{}

func (s Security) GetJWTSecret() string {
	return s.v.GetString(jwtSecretVar)
}

func (s Security) GetBcryptCost() int {
	return s.v.GetInt(bcryptCostVar)
}
