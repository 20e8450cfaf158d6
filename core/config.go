package core

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env          string
		Debug        bool
		AppName      string `validate:"required"`
		Build        string
		RollbarToken string

		API struct {
			BaseURL string        `validate:"required,url"`
			Timeout time.Duration `validate:"gt=0"`
		}

		Web struct {
			Address         string `validate:"required,hostname_port"`
			ShutdownTimeout time.Duration
			HoldTimeout     time.Duration
		}

		CLI struct {
			CookieJar string `validate:"required"`
		}

		Stub struct {
			Address    string `validate:"required,hostname_port"`
			SecretKey  string `validate:"required"`
			AccessTTL  time.Duration
			RefreshTTL time.Duration
		}
	}
)

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Edusys")
	v.SetDefault("build", "develop")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("api.baseURL", "http://127.0.0.1:8000/api/")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("web.address", "127.0.0.1:3000")
	v.SetDefault("web.shutdownTimeout", 10*time.Second)
	v.SetDefault("web.holdTimeout", 5*time.Second)
	v.SetDefault("cli.cookieJar", filepath.Join("~", ".edusys", "cookies.json"))
	v.SetDefault("stub.address", "127.0.0.1:8000")
	v.SetDefault("stub.secretKey", "u9x!2f0w+l8@kq=3z6$ht#m1j^pe7c5r)dn(4bsyv&ga")
	v.SetDefault("stub.accessTTL", 5*time.Minute)
	v.SetDefault("stub.refreshTTL", 24*time.Hour)
}

// NewConfig reads the configuration of the current environment.
// ENV selects the environment (DEV by default, TEST, QA, PROD) and is used as the env vars prefix:
// `DEV_API_BASEURL` overrides `api.baseURL`.
func NewConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}
	v.AutomaticEnv()

	conf := new(Config)
	conf.Env = env
	conf.Debug = v.GetBool("debug")
	conf.AppName = v.GetString("appName")
	conf.Build = v.GetString("build")
	conf.RollbarToken = v.GetString("rollbarToken")

	conf.API.BaseURL = v.GetString("api.baseURL")
	conf.API.Timeout = v.GetDuration("api.timeout")

	conf.Web.Address = v.GetString("web.address")
	conf.Web.ShutdownTimeout = v.GetDuration("web.shutdownTimeout")
	conf.Web.HoldTimeout = v.GetDuration("web.holdTimeout")

	conf.CLI.CookieJar = ExpandHome(v.GetString("cli.cookieJar"))

	conf.Stub.Address = v.GetString("stub.address")
	conf.Stub.SecretKey = v.GetString("stub.secretKey")
	conf.Stub.AccessTTL = v.GetDuration("stub.accessTTL")
	conf.Stub.RefreshTTL = v.GetDuration("stub.refreshTTL")

	if err := validator.New().Struct(conf); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}
	return conf, nil
}

// TestMode tells whether the config was loaded for the TEST environment.
func (c *Config) TestMode() bool {
	return c.Env == "TEST"
}
