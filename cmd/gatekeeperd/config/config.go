package config

import (
	"fmt"
	"time"
)

// BaseConfig is the root configuration document loaded by go-config from
// config/app.json plus environment overrides.
type BaseConfig struct {
	Name        string       `json:"name" koanf:"name"`
	Env         string       `json:"env" koanf:"env"`
	Server      *Server      `json:"server" koanf:"server"`
	Auth        *Auth        `json:"auth" koanf:"auth"`
	Persistence *Persistence `json:"persistence" koanf:"persistence"`
}

func (a *BaseConfig) Validate() error {
	if a.Auth == nil {
		return fmt.Errorf("missing auth configuration")
	}
	if a.Auth.SigningKey == "" {
		return fmt.Errorf("missing auth signing key")
	}
	if a.Persistence == nil {
		return fmt.Errorf("missing persistence configuration")
	}
	return nil
}

func (a *BaseConfig) IsDevelopment() bool {
	return a.Env == "" || a.Env == "development"
}

func (a *BaseConfig) GetServer() *Server {
	if a.Server == nil {
		a.Server = &Server{}
	}
	return a.Server
}

func (a *BaseConfig) GetAuth() *Auth {
	if a.Auth == nil {
		a.Auth = &Auth{}
	}
	return a.Auth
}

func (a *BaseConfig) GetPersistence() *Persistence {
	if a.Persistence == nil {
		a.Persistence = &Persistence{}
	}
	return a.Persistence
}

type Server struct {
	Addr       string `json:"addr" koanf:"addr"`
	CORSOrigin string `json:"cors_origin" koanf:"cors_origin"`
}

func (s Server) GetAddr() string {
	if s.Addr == "" {
		return ":9576"
	}
	return s.Addr
}

// Auth satisfies the gatekeeper Config interface.
type Auth struct {
	SigningKey            string   `json:"signing_key" koanf:"signing_key"`
	TokenTTLExpression    string   `json:"token_ttl" koanf:"token_ttl"`
	Issuer                string   `json:"issuer" koanf:"issuer"`
	Audience              []string `json:"audience" koanf:"audience"`
	ContextKey            string   `json:"context_key" koanf:"context_key"`
	AuthScheme            string   `json:"auth_scheme" koanf:"auth_scheme"`
	AdminRegistrationCode string   `json:"admin_registration_code" koanf:"admin_registration_code"`
	CORSOrigin            string   `json:"cors_origin" koanf:"cors_origin"`
}

func (a Auth) GetSigningKey() string {
	return a.SigningKey
}

func (a Auth) GetTokenTTL() time.Duration {
	if a.TokenTTLExpression == "" {
		return 24 * time.Hour
	}
	dur, err := time.ParseDuration(a.TokenTTLExpression)
	if err != nil {
		panic(
			fmt.Sprintf("unable to parse time: expr %s", a.TokenTTLExpression),
		)
	}
	return dur
}

func (a Auth) GetIssuer() string {
	return a.Issuer
}

func (a Auth) GetAudience() []string {
	return a.Audience
}

func (a Auth) GetContextKey() string {
	if a.ContextKey == "" {
		return "account"
	}
	return a.ContextKey
}

func (a Auth) GetAuthScheme() string {
	if a.AuthScheme == "" {
		return "Bearer"
	}
	return a.AuthScheme
}

func (a Auth) GetAdminRegistrationCode() string {
	return a.AdminRegistrationCode
}

func (a Auth) GetCORSOrigin() string {
	if a.CORSOrigin == "" {
		return "*"
	}
	return a.CORSOrigin
}

type Persistence struct {
	Debug                 bool   `json:"debug" koanf:"debug"`
	Driver                string `json:"driver" koanf:"driver"`
	DSN                   string `json:"dsn" koanf:"dsn"`
	Server                string `json:"server" koanf:"server"`
	Database              string `json:"database" koanf:"database"`
	PingTimeoutExpression string `json:"ping_timeout" koanf:"ping_timeout"`
}

func (p Persistence) GetDebug() bool {
	return p.Debug
}

func (p Persistence) GetDriver() string {
	if p.Driver == "" {
		return "sqlite"
	}
	return p.Driver
}

func (p Persistence) GetDSN() string {
	if p.DSN == "" {
		return "file::memory:?cache=shared"
	}
	return p.DSN
}

func (p Persistence) GetOtelIdentifier() string {
	return ""
}

func (p Persistence) GetServer() string {
	return p.Server
}

func (p Persistence) GetDatabase() string {
	return p.Database
}

func (p Persistence) GetPingTimeout() time.Duration {
	if p.PingTimeoutExpression == "" {
		return 5 * time.Second
	}
	dur, err := time.ParseDuration(p.PingTimeoutExpression)
	if err != nil {
		panic(
			fmt.Sprintf("unable to parse time: expr %s", p.PingTimeoutExpression),
		)
	}
	return dur
}
