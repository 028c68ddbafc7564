// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"

	"github.com/spf13/viper"

	"github.com/lukasdietrich/newsletter/internal/config"
)

// ErrUnsupportedTransport is returned for unknown values of "delivery.transport".
var ErrUnsupportedTransport = errors.New("unsupported delivery transport")

func init() {
	viper.SetDefault("delivery.ses.region", "us-east-1")
}

// Transport delivers messages. Implementations may hold a connection across calls, that is released
// by Close.
type Transport interface {
	Send(ctx context.Context, message *Message) error
	Close() error
}

// CheckTransport validates the settings of the configured transport without opening it. A disabled
// newsletter or missing credentials result in config.ErrConfigMissing.
func CheckTransport(settings *config.Settings) error {
	if err := settings.RequireEnabled(); err != nil {
		return err
	}

	switch settings.Transport {
	case "", "smtp":
		_, _, err := settings.RequireSMTP()
		return err

	case "ses":
		return nil

	case "sendgrid":
		if viper.GetString("delivery.sendgrid.api_key") == "" {
			return fmt.Errorf("%w: delivery.sendgrid.api_key is not set", config.ErrConfigMissing)
		}

		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedTransport, settings.Transport)
	}
}

// NewTransport creates the transport configured by "delivery.transport". The smtp transport needs
// the SMTP server and password, the others read their credentials from viper:
//
// `delivery.ses.region`, `delivery.ses.access_key_id` and `delivery.ses.secret_access_key` for ses.
// `delivery.sendgrid.api_key` for sendgrid.
func NewTransport(ctx context.Context, settings *config.Settings) (Transport, error) {
	if err := CheckTransport(settings); err != nil {
		return nil, err
	}

	switch settings.Transport {
	case "ses":
		return NewSESTransport(ctx, SESOptions{
			Region:          viper.GetString("delivery.ses.region"),
			AccessKeyID:     viper.GetString("delivery.ses.access_key_id"),
			SecretAccessKey: viper.GetString("delivery.ses.secret_access_key"),
		})

	case "sendgrid":
		return NewSendGridTransport(viper.GetString("delivery.sendgrid.api_key")), nil

	default:
		server, password, _ := settings.RequireSMTP()
		return NewSMTPTransport(server, password), nil
	}
}

// isPermanentErr tests if an error is an smtp error and if it has a 5xx code.
func isPermanentErr(err error) bool {
	var protoError *textproto.Error
	if errors.As(err, &protoError) {
		return protoError.Code >= 500 && protoError.Code < 600
	}

	return false
}
