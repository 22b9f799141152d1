package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/text/language"
)

// Validate reports every inconsistent setting at once so a bad deploy fails
// with the whole list instead of one item per restart.
func (c *Config) Validate() error {
	var errs error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf(format, args...))
		}
	}

	_, err := language.Parse(c.App.Locale)
	check(err == nil, "app locale %q is not a language tag", c.App.Locale)

	check(c.JWT.ExpirationMinutes > 0, "jwt expiration must be positive")
	check(c.JWT.RefreshTokenTTLMinutes > c.JWT.ExpirationMinutes,
		"refresh token ttl (%dm) must exceed access token ttl (%dm)", c.JWT.RefreshTokenTTLMinutes, c.JWT.ExpirationMinutes)

	check(c.Store.AlertHistoryLimit > 0, "alert history limit must be positive")
	check(c.Store.StreamHeartbeat > 0, "stream heartbeat must be positive")

	switch strings.ToLower(c.Media.Backend) {
	case "local":
	case "gcs":
		check(c.GCS.BucketName != "", "gcs media backend needs a bucket name")
	default:
		check(false, "unknown media backend %q", c.Media.Backend)
	}

	check(!c.FeatureFlags.PublishAlerts || c.GCP.ProjectID != "", "publishing alerts needs a gcp project id")
	check(c.MQTT.QoS <= 2, "mqtt qos %d out of range", c.MQTT.QoS)
	if c.FeatureFlags.CallButtonsMQTT {
		check(c.MQTT.BrokerURL != "" && c.MQTT.Topic != "", "call buttons need an mqtt broker and topic")
	}

	if c.App.IsProd() {
		check(len(c.JWT.Secret) >= minProdSecretLen, "jwt secret must be at least %d bytes in prod", minProdSecretLen)
		check(!slices.Contains(c.App.AllowedOrigins(), "*"), "cors origins must be listed explicitly in prod")
	}

	if errs != nil {
		return errors.Join(ErrInvalid, errs)
	}
	return nil
}

var ErrInvalid = errors.New("invalid configuration")

const minProdSecretLen = 32
