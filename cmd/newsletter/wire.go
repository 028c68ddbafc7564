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

//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/lukasdietrich/newsletter/internal/migration"
)

func newStatusCommand() (*statusCommand, func(), error) {
	panic(wire.Build(storageSet, provideSettings, wire.Struct(new(statusCommand), "*")))
}

func newFetchCommand() (*fetchCommand, func(), error) {
	panic(wire.Build(storageSet, pluginSet, ingestSet, wire.Struct(new(fetchCommand), "*")))
}

func newApproveCommand() (*approveCommand, func(), error) {
	panic(wire.Build(storageSet, pluginSet, reviewSet, wire.Struct(new(approveCommand), "*")))
}

func newListCommand() (*listCommand, func(), error) {
	panic(wire.Build(storageSet, wire.Struct(new(listCommand), "*")))
}

func newRemoveCommand() (*removeCommand, func(), error) {
	panic(wire.Build(storageSet, wire.Struct(new(removeCommand), "*")))
}

func newExportCommand() (*exportCommand, func(), error) {
	panic(wire.Build(storageSet, provideFs, wire.Struct(new(exportCommand), "*")))
}

func newImportCommand() (*importCommand, func(), error) {
	panic(wire.Build(storageSet, provideFs, migration.NewImporter, wire.Struct(new(importCommand), "*")))
}

func newNewsletterCommand() (*newsletterCommand, func(), error) {
	panic(wire.Build(storageSet, pluginSet, newsletterSet, wire.Struct(new(newsletterCommand), "*")))
}

func newPluginCommand() (*pluginCommand, func(), error) {
	panic(wire.Build(storageSet, pluginSet, wire.Struct(new(pluginCommand), "*")))
}

func newServerCommand() (*serverCommand, func(), error) {
	panic(wire.Build(storageSet, pluginSet, newsletterSet, ingestSet, serverSet, wire.Struct(new(serverCommand), "*")))
}

func newShellCommand() (*shellCommand, func(), error) {
	panic(wire.Build(storageSet, pluginSet, shellSet, wire.Struct(new(shellCommand), "*")))
}
