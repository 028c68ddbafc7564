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

// Package spool buffers uploaded data. Small uploads stay in memory, larger ones are written to a
// temporary file.
package spool

import (
	"bytes"
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/newsletter/internal/log"
)

func init() {
	viper.SetDefault("spool.foldername", ".blogr/spool")
	viper.SetDefault("spool.memoryLimit", 1<<20) // 1 Megabyte
}

// Spool is a temporary storage for uploads.
type Spool struct {
	fs          afero.Fs
	memoryLimit int64
}

// New creates a spool on the os filesystem using configuration from viper.
//
// `spool.memoryLimit` is the maximum size of data kept in memory.
// `spool.foldername` is the foldername of temporary files.
func New() (*Spool, error) {
	folderName := viper.GetString("spool.foldername")

	fs := afero.NewOsFs()
	if err := fs.MkdirAll(folderName, 0700); err != nil {
		return nil, err
	}

	return NewWithFs(afero.NewBasePathFs(fs, folderName), viper.GetInt64("spool.memoryLimit")), nil
}

// NewWithFs creates a spool writing temporary files to fs.
func NewWithFs(fs afero.Fs, memoryLimit int64) *Spool {
	return &Spool{
		fs:          fs,
		memoryLimit: memoryLimit,
	}
}

// Write copies all the data from r. If the total size reaches the memory limit, the data is written
// to disk.
func (s *Spool) Write(ctx context.Context, r io.Reader) (*Entry, error) {
	memory := bytes.NewBuffer(nil)

	n, err := io.Copy(memory, io.LimitReader(r, s.memoryLimit))
	if err != nil {
		return nil, err
	}

	if n < s.memoryLimit {
		return &Entry{memory: memory, size: n}, nil
	}

	name := uuid.NewString()

	file, err := s.fs.Create(name)
	if err != nil {
		return nil, err
	}

	log.InfoContext(ctx).
		Str("filename", name).
		Int64("memoryLimit", s.memoryLimit).
		Msg("upload exceeding size limit, evading to file")

	size, err := io.Copy(file, io.MultiReader(memory, r))
	if err != nil {
		if err := file.Close(); err != nil {
			log.WarnContext(ctx).
				Str("filename", name).
				Err(err).
				Msg("could not close partial spool file")
		}

		if err := s.fs.Remove(name); err != nil {
			log.WarnContext(ctx).
				Str("filename", name).
				Err(err).
				Msg("could not remove partial spool file")
		}

		return nil, err
	}

	return &Entry{name: name, file: file, fs: s.fs, size: size}, nil
}

// Entry is a single upload kept in the spool.
type Entry struct {
	memory *bytes.Buffer
	name   string
	file   afero.File
	fs     afero.Fs
	size   int64
}

// Size returns the number of bytes of the upload.
func (e *Entry) Size() int64 {
	return e.size
}

// OnDisk reports whether the upload was written to a file.
func (e *Entry) OnDisk() bool {
	return e.file != nil
}

// Release deletes data on disk, that may have been written.
func (e *Entry) Release(ctx context.Context) error {
	if e.file == nil {
		return nil
	}

	log.DebugContext(ctx).
		Str("filename", e.name).
		Msg("removing spool file")

	if err := e.file.Close(); err != nil {
		return err
	}

	return e.fs.Remove(e.name)
}

// Reader returns a new reader of the full upload. It seeks to the start of the file and is
// therefore not safe for concurrent use.
func (e *Entry) Reader() (io.Reader, error) {
	if e.file != nil {
		if _, err := e.file.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}

		return e.file, nil
	}

	return bytes.NewReader(e.memory.Bytes()), nil
}
