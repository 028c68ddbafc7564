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

package main

import (
	"strings"

	"github.com/google/wire"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/newsletter/internal/api"
	"github.com/lukasdietrich/newsletter/internal/certs"
	"github.com/lukasdietrich/newsletter/internal/compose"
	"github.com/lukasdietrich/newsletter/internal/config"
	"github.com/lukasdietrich/newsletter/internal/database"
	"github.com/lukasdietrich/newsletter/internal/delivery"
	"github.com/lukasdietrich/newsletter/internal/ingest"
	"github.com/lukasdietrich/newsletter/internal/lock"
	"github.com/lukasdietrich/newsletter/internal/log"
	"github.com/lukasdietrich/newsletter/internal/migration"
	"github.com/lukasdietrich/newsletter/internal/plugin"
	"github.com/lukasdietrich/newsletter/internal/review"
	"github.com/lukasdietrich/newsletter/internal/shell"
	"github.com/lukasdietrich/newsletter/internal/spool"
	"github.com/lukasdietrich/newsletter/internal/store"
)

func init() {
	viper.SetDefault("newsletter.templates", ".blogr/templates")
	viper.SetDefault("blog.feed_url", "")
}

var storageSet = wire.NewSet(
	provideConnection,
	database.NewSubscriberDao,
	store.New,
	lock.New,
)

var pluginSet = wire.NewSet(
	provideSettings,
	plugin.NewManager,
)

var newsletterSet = wire.NewSet(
	provideFs,
	provideTemplates,
	provideFeed,
	compose.NewComposer,
	delivery.NewDispatcher,

	wire.Bind(new(compose.Plugins), new(*plugin.Manager)),
	wire.Bind(new(compose.PostProvider), new(*compose.FeedProvider)),
	wire.Bind(new(delivery.Subscribers), new(*store.Store)),
	wire.Bind(new(delivery.Hooks), new(*plugin.Manager)),
)

var ingestSet = wire.NewSet(
	ingest.NewIMAPDialer,
	ingest.NewPipeline,

	wire.Bind(new(ingest.Hooks), new(*plugin.Manager)),
)

var reviewSet = wire.NewSet(
	review.NewLoop,

	wire.Bind(new(review.Store), new(*store.Store)),
	wire.Bind(new(review.Hooks), new(*plugin.Manager)),
)

var shellSet = wire.NewSet(
	shell.NewShell,

	wire.Bind(new(shell.Store), new(*store.Store)),
	wire.Bind(new(shell.Plugins), new(*plugin.Manager)),
)

var serverSet = wire.NewSet(
	provideServerOptions,
	api.NewServer,
	migration.NewImporter,
	spool.New,

	wire.Bind(new(api.Dispatcher), new(*delivery.Dispatcher)),
)

func provideSettings() (*config.Settings, error) {
	return config.Resolve(viper.GetViper(), config.Environ())
}

func provideConnection() (database.Conn, func(), error) {
	conn, err := database.OpenConnection()
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if err := conn.Close(); err != nil {
			log.Warn().Err(err).Msg("could not close database")
		}
	}

	return conn, cleanup, nil
}

// provideServerOptions reads the api options and the tls configuration.
func provideServerOptions(fs afero.Fs) (api.Options, error) {
	options := api.OptionsFromViper()

	tlsConfig, err := certs.NewTLSConfig(fs)
	if err != nil {
		return options, err
	}

	options.TLS = tlsConfig
	return options, nil
}

func provideFs() afero.Fs {
	return afero.NewOsFs()
}

// provideTemplates overrides the embedded templates with files from `newsletter.templates`.
func provideTemplates() *compose.Templates {
	dir := viper.GetString("newsletter.templates")
	return compose.NewTemplates(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

// provideFeed reads posts from `blog.feed_url`, or from "feed.xml" below the base url of the blog.
func provideFeed(settings *config.Settings) *compose.FeedProvider {
	url := viper.GetString("blog.feed_url")
	if url == "" {
		url = strings.TrimSuffix(settings.BlogURL, "/") + "/feed.xml"
	}

	return compose.NewFeedProvider(url)
}
