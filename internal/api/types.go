package api

import (
	"net/http"
)

type (
	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string `json:"status"`
		ServiceName string `json:"serviceName"`
		Version     string `json:"version"`
		Uptime      string `json:"uptime,omitempty"`
		Storage     string `json:"storage"`
	}

	// BuildDependenciesResponse is the body of GET /api/v1/dependencies/build.
	BuildDependenciesResponse struct {
		RequestArgs  map[string]any    `json:"request_args"` //nolint:tagliatelle
		Length       int               `json:"length"`
		Dependencies []BuildDependency `json:"dependencies"`
	}

	// BuildDependency is one source package of a resolved build dependency list.
	BuildDependency struct {
		Depth     int      `json:"depth"`
		Name      string   `json:"name"`
		Version   string   `json:"version"`
		Release   string   `json:"release"`
		Epoch     int64    `json:"epoch"`
		Serial    int64    `json:"serial"`
		SourceRPM string   `json:"sourcerpm"`
		Branch    string   `json:"branch"`
		BuildTime string   `json:"buildtime"`
		Archs     []string `json:"archs"`
		Cycle     []string `json:"cycle"`
		Requires  []string `json:"requires"`
		DependsOn []string `json:"depends_on"` //nolint:tagliatelle
		ACL       []string `json:"acl"`
	}

	// DependencySetResponse is the body of GET /api/v1/dependencies/set.
	DependencySetResponse struct {
		RequestArgs map[string]any         `json:"request_args"` //nolint:tagliatelle
		Length      int                    `json:"length"`
		Packages    []DependencySetPackage `json:"packages"`
	}

	// DependencySetPackage is the binary closure of one requested source package.
	DependencySetPackage struct {
		Package string                 `json:"package"`
		Length  int                    `json:"length"`
		Depends []DependencySetElement `json:"depends"`
	}

	// DependencySetElement is one binary package of a closure.
	DependencySetElement struct {
		Name     string   `json:"name"`
		Version  string   `json:"version"`
		Release  string   `json:"release"`
		Epoch    int64    `json:"epoch"`
		Archs    []string `json:"archs"`
		Requires []string `json:"requires"`
	}

	// MisconflictResponse is the body of GET /api/v1/packages/misconflict.
	MisconflictResponse struct {
		RequestArgs map[string]any        `json:"request_args"` //nolint:tagliatelle
		Length      int                   `json:"length"`
		Conflicts   []MisconflictPackages `json:"conflicts"`
	}

	// MisconflictPackages is a file conflict no declaration excuses.
	MisconflictPackages struct {
		InputPackage      string   `json:"input_package"`    //nolint:tagliatelle
		ConflictPackage   string   `json:"conflict_package"` //nolint:tagliatelle
		Version           string   `json:"version"`
		Release           string   `json:"release"`
		Epoch             int64    `json:"epoch"`
		Archs             []string `json:"archs"`
		FilesWithConflict []string `json:"files_with_conflict"` //nolint:tagliatelle
	}

	// ConflictFilterRequest is the body of POST /api/v1/conflicts/filter. Hashes are
	// decimal strings because they do not fit in a JSON number.
	ConflictFilterRequest struct {
		Pairs []HashPair `json:"pairs"`
	}

	// HashPair is an unordered pair of package hashes.
	HashPair struct {
		A string `json:"a"`
		B string `json:"b"`
	}

	// ConflictFilterResponse lists the pairs whose overlap is excused.
	ConflictFilterResponse struct {
		Length  int        `json:"length"`
		Excused []HashPair `json:"excused"`
	}

	// VersionCompareResponse is the body of GET /api/v1/version/compare.
	VersionCompareResponse struct {
		First  string `json:"first"`
		Second string `json:"second"`
		Result int    `json:"result"`
	}

	// Route is an HTTP route registration.
	Route struct {
		Pattern string
		Handler http.Handler
	}
)
