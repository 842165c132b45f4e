// Package mysql provides verification record repositories backed by MySQL,
// plus a file-backed in-memory variant for development and tests. Records are
// written once and never revised afterwards.
package mysql
