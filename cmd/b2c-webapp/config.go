package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/b2cauth/b2cauth/b2c"
	"github.com/gorilla/securecookie"
	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// environment variables overriding the config file
const (
	envInstance      = "B2C_INSTANCE"
	envDomain        = "B2C_DOMAIN"
	envClientId      = "B2C_CLIENT_ID"
	envClientSecret  = "B2C_CLIENT_SECRET"
	envRedirectUri   = "B2C_REDIRECT_URI"
	envCallbackPath  = "B2C_CALLBACK_PATH"
	envSignUpSignIn  = "B2C_SIGNUP_SIGNIN_POLICY"
	envEditProfile   = "B2C_EDIT_PROFILE_POLICY"
	envResetPassword = "B2C_RESET_PASSWORD_POLICY"
	envApiUrl        = "B2C_API_URL"
	envApiScopes     = "B2C_API_SCOPES"
	envIssuer        = "B2C_ISSUER"
	envProviderCA    = "B2C_PROVIDER_CA_FILE"
	envAddr          = "WEBAPP_ADDR"
	envStateKey      = "WEBAPP_STATE_KEY"
	envSessionKey    = "WEBAPP_SESSION_KEY"
	envInsecure      = "WEBAPP_INSECURE_COOKIES"
	envRedisURL      = "REDIS_URL"
	envLogLevel      = "LOG_LEVEL"
)

const defaultAddr = ":5000"

// azureAdB2C is the AzureAdB2C section of the config file.
type azureAdB2C struct {
	Instance              string `yaml:"Instance"`
	Domain                string `yaml:"Domain"`
	ClientId              string `yaml:"ClientId"`
	ClientSecret          string `yaml:"ClientSecret"`
	RedirectUri           string `yaml:"RedirectUri"`
	CallbackPath          string `yaml:"CallbackPath"`
	SignUpSignInPolicyId  string `yaml:"SignUpSignInPolicyId"`
	EditProfilePolicyId   string `yaml:"EditProfilePolicyId"`
	ResetPasswordPolicyId string `yaml:"ResetPasswordPolicyId"`
	ApiUrl                string `yaml:"ApiUrl"`
	ApiScopes             string `yaml:"ApiScopes"`
	Issuer                string `yaml:"Issuer"`

	// ProviderCAFile is an optional PEM file of the CA which signed the
	// provider's certificate.
	ProviderCAFile string `yaml:"ProviderCAFile"`
}

// appConfig is the web app's configuration.
type appConfig struct {
	AzureAdB2C azureAdB2C `yaml:"AzureAdB2C"`

	Addr            string `yaml:"Addr"`
	StateKey        string `yaml:"StateKey"`
	SessionKey      string `yaml:"SessionKey"`
	InsecureCookies bool   `yaml:"InsecureCookies"`
	RedisURL        string `yaml:"RedisURL"`
	LogLevel        string `yaml:"LogLevel"`
}

// loadConfig reads the optional YAML file at path, after loading envFiles
// into the environment, and applies the environment's overrides.
func loadConfig(path string, envFiles ...string) (*appConfig, error) {
	const op = "loadConfig"
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: unable to load %s: %w", op, f, err)
		}
	}

	cfg := &appConfig{Addr: defaultAddr}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("%s: unable to parse %s: %w", op, path, err)
		}
	}

	for k, dst := range map[string]*string{
		envInstance:      &cfg.AzureAdB2C.Instance,
		envDomain:        &cfg.AzureAdB2C.Domain,
		envClientId:      &cfg.AzureAdB2C.ClientId,
		envClientSecret:  &cfg.AzureAdB2C.ClientSecret,
		envRedirectUri:   &cfg.AzureAdB2C.RedirectUri,
		envCallbackPath:  &cfg.AzureAdB2C.CallbackPath,
		envSignUpSignIn:  &cfg.AzureAdB2C.SignUpSignInPolicyId,
		envEditProfile:   &cfg.AzureAdB2C.EditProfilePolicyId,
		envResetPassword: &cfg.AzureAdB2C.ResetPasswordPolicyId,
		envApiUrl:        &cfg.AzureAdB2C.ApiUrl,
		envApiScopes:     &cfg.AzureAdB2C.ApiScopes,
		envIssuer:        &cfg.AzureAdB2C.Issuer,
		envProviderCA:    &cfg.AzureAdB2C.ProviderCAFile,
		envAddr:          &cfg.Addr,
		envStateKey:      &cfg.StateKey,
		envSessionKey:    &cfg.SessionKey,
		envRedisURL:      &cfg.RedisURL,
		envLogLevel:      &cfg.LogLevel,
	} {
		if v, ok := os.LookupEnv(k); ok && v != "" {
			*dst = v
		}
	}
	if v := os.Getenv(envInsecure); v != "" {
		cfg.InsecureCookies = strings.EqualFold(v, "true") || v == "1"
	}
	return cfg, nil
}

// b2cConfig converts the AzureAdB2C section into a validated b2c.Config.
func (c *appConfig) b2cConfig(logger hclog.Logger) (*b2c.Config, error) {
	const op = "appConfig.b2cConfig"
	a := c.AzureAdB2C
	opts := []b2c.Option{
		b2c.WithApiScopes(a.ApiScopes),
		b2c.WithLogger(logger),
	}
	if a.ApiUrl != "" {
		opts = append(opts, b2c.WithApiUrl(a.ApiUrl))
	}
	if a.CallbackPath != "" {
		opts = append(opts, b2c.WithCallbackPath(a.CallbackPath))
	}
	if a.Issuer != "" {
		opts = append(opts, b2c.WithIssuer(a.Issuer))
	}
	if a.ProviderCAFile != "" {
		ca, err := os.ReadFile(a.ProviderCAFile)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to read provider CA: %w", op, err)
		}
		opts = append(opts, b2c.WithProviderCA(string(ca)))
	}
	return b2c.NewConfig(
		a.Instance,
		a.Domain,
		a.ClientId,
		b2c.ClientSecret(a.ClientSecret),
		a.RedirectUri,
		b2c.Policies{
			SignUpSignIn:  a.SignUpSignInPolicyId,
			EditProfile:   a.EditProfilePolicyId,
			ResetPassword: a.ResetPasswordPolicyId,
		},
		opts...,
	)
}

// keys returns the state and session keys. A key which isn't configured is
// generated, so attempts and sessions don't survive a restart.
func (c *appConfig) keys(logger hclog.Logger) (stateKey, sessionKey []byte) {
	key := func(name, configured string) []byte {
		if configured != "" {
			return []byte(configured)
		}
		logger.Warn("key not configured, generating one", "key", name)
		return securecookie.GenerateRandomKey(32)
	}
	return key("state", c.StateKey), key("session", c.SessionKey)
}

// logLevel returns the configured log level, info by default.
func (c *appConfig) logLevel() hclog.Level {
	if l := hclog.LevelFromString(c.LogLevel); l != hclog.NoLevel {
		return l
	}
	return hclog.Info
}

// timeouts of the http server
const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)
