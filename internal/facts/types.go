// Package facts defines the package repository facts consumed by the dependency
// resolver and the conflict filter: package identities, their dependency relations,
// file ownership and the read-only Store they are fetched from.
package facts

import (
	"strings"
	"time"

	"github.com/depgraph-io/depgraph/internal/rpm"
)

// Kind is the kind of an RPM dependency relation.
type Kind string

// Relation kinds as stored in the Depends table.
const (
	KindRequire  Kind = "require"
	KindProvide  Kind = "provide"
	KindConflict Kind = "conflict"
	KindObsolete Kind = "obsolete"
)

// Class selects source or binary packages.
type Class string

// Package classes.
const (
	ClassSource Class = "source"
	ClassBinary Class = "binary"
)

// ArchSource is the architecture tag carried by source packages.
const ArchSource = "srpm"

// debuginfoSuffix marks binary packages that never take part in dependency resolution.
const debuginfoSuffix = "-debuginfo"

type (
	// Package is a package identity within the repository.
	Package struct {
		Hash       uint64
		Name       string
		Epoch      int64
		Version    string
		Release    string
		Disttag    string
		Serial     int64
		Arch       string
		Source     bool
		SourceRPM  string
		SourceHash uint64 // hash of the source package a binary was built from; zero for sources
		BuildTime  time.Time
		Branch     string
	}

	// Dependency is a single relation declared by a package. Flags is the raw rpm flag
	// word; only its comparison bits are meaningful here.
	Dependency struct {
		Kind    Kind
		Name    string
		Version string
		Flags   uint32
	}

	// Relation is a dependency together with the hash of the package declaring it.
	Relation struct {
		PackageHash uint64
		Dependency
	}

	// Match pairs a package with the relation through which it matched a capability lookup.
	Match struct {
		Package    Package
		Dependency Dependency
	}

	// VersionInfo is the version metadata of a single package.
	VersionInfo struct {
		Hash    uint64
		Epoch   int64
		Version string
		Release string
		Disttag string
	}

	// File is a file path owned by a package.
	File struct {
		PathHash uint64
		Path     string
	}

	// ConflictCandidate is a pair of packages that ship the same file path with different content.
	ConflictCandidate struct {
		A     uint64
		B     uint64
		Files []File
	}
)

// EVR returns the full version of the package including disttag.
func (p Package) EVR() rpm.EVR {
	return rpm.EVR{
		Epoch:    p.Epoch,
		HasEpoch: p.Epoch != 0,
		Version:  p.Version,
		Release:  p.Release,
		Disttag:  p.Disttag,
	}
}

// IsDebuginfo reports whether the package is a *-debuginfo binary.
func (p Package) IsDebuginfo() bool {
	return !p.Source && strings.HasSuffix(p.Name, debuginfoSuffix)
}

// Dep converts the relation into an rpm range.
func (d Dependency) Dep() rpm.Dep {
	return rpm.Dep{
		Name:  d.Name,
		EVR:   d.Version,
		Flags: rpm.SenseFromFlags(d.Flags),
	}
}

// EVR returns the version metadata as a comparable EVR.
func (v VersionInfo) EVR() rpm.EVR {
	return rpm.EVR{
		Epoch:    v.Epoch,
		HasEpoch: v.Epoch != 0,
		Version:  v.Version,
		Release:  v.Release,
		Disttag:  v.Disttag,
	}
}
