// Package engines is the startup list of every supported portal.
package engines

import (
	"portalgrades/internal/engines/infinitecampus"
	"portalgrades/internal/engines/powerschool"
	"portalgrades/internal/engines/studentvue"
	"portalgrades/internal/registry"
	"portalgrades/internal/telemetry"
	"portalgrades/lib/timezone"
)

type campus struct {
	key     string
	baseURL string
	appName string
	role    infinitecampus.Role
}

var campuses = []campus{
	{"infinite_campus_parent_alac", "https://alaaz.infinitecampus.org", "ala", infinitecampus.Parents},
	{"infinite_campus_parent_gilbert", "https://gilbertaz.infinitecampus.org", "gilbert", infinitecampus.Parents},
	{"infinite_campus_parent_chandler", "https://chandleraz.infinitecampus.org", "chandler", infinitecampus.Parents},
	{"infinite_campus_parent_ccsd", "https://campus.ccsd.net", "clark", infinitecampus.Parents},
	{"infinite_campus_parent_asuprep", "https://asuprepaz.infinitecampus.org", "asuprep", infinitecampus.Parents},
	{"infinite_campus_student_ccsd", "https://campus.ccsd.net", "clark", infinitecampus.Students},
	{"infinite_campus_student_coral", "https://nspcsa.infinitecampus.org", "coral", infinitecampus.Students},
	{"infinite_campus_student_pinecrest", "https://nspcsa.infinitecampus.org", "pinecrest", infinitecampus.Students},
	{"infinite_campus_student_henderson", "https://nvcloud1.infinitecampus.org", "henderson", infinitecampus.Students},
}

// Options apply to every registered engine.
type Options struct {
	// Label is the kind of grade kept from Infinite Campus feeds,
	// infinitecampus.DefaultLabel when empty.
	Label string
	Clock timezone.Clock
}

// RegisterAll registers every supported portal and freezes the registry.
func RegisterAll(reg *registry.Registry, tel telemetry.API, opts Options) {
	for _, c := range campuses {
		reg.MustRegister(c.key, infinitecampus.Factory(infinitecampus.Options{
			Key:     c.key,
			BaseURL: c.baseURL,
			AppName: c.appName,
			Role:    c.role,
			Label:   opts.Label,
			Clock:   opts.Clock,
		}, tel))
	}

	reg.MustRegister("gps", infinitecampus.Factory(infinitecampus.Options{
		Key:     "gps",
		BaseURL: "https://gilbertaz.infinitecampus.org",
		AppName: "gilbert",
		Role:    infinitecampus.Parents,
		Label:   opts.Label,
		Clock:   opts.Clock,
		Gateway: &infinitecampus.GatewayOptions{
			LoginURL:      "https://gpsportal.gilberted.net/",
			CampusTileAlt: "STUDENT INFINITE CAMPUS",
		},
	}, tel))

	reg.MustRegister("studentvue_husd", studentvue.Factory(studentvue.Options{
		Key:     "studentvue_husd",
		BaseURL: "https://parentvue.husd.org",
		Role:    studentvue.Student,
	}, tel))
	reg.MustRegister("parentvue_husd", studentvue.Factory(studentvue.Options{
		Key:     "parentvue_husd",
		BaseURL: "https://parentvue.husd.org",
		Role:    studentvue.Parent,
	}, tel))

	reg.MustRegister("powerschool_lts_parent", powerschool.Factory(powerschool.Options{
		Key:     "powerschool_lts_parent",
		BaseURL: "https://lts.powerschool.com",
	}, tel))

	reg.Freeze()
}
