package meta

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jo25425/dona-sub000/internal/core"
	"github.com/jo25425/dona-sub000/internal/donation"
	"github.com/jo25425/dona-sub000/internal/textrepair"
)

// Profile locates and reads the donor's own name for one Meta product.
type Profile struct {
	// FileName is the base name of the profile entry.
	FileName string
	// DonorName extracts the donor's display name from the entry's JSON.
	DonorName func(doc []byte) (string, error)
}

// Profiles maps each Meta source to its profile convention.
var Profiles = map[core.DataSource]Profile{
	core.Facebook:  {FileName: "profile_information.json", DonorName: FacebookDonorName},
	core.Instagram: {FileName: "personal_information.json", DonorName: InstagramDonorName},
}

// FacebookDonorName reads name.full_name under the first top-level key that
// mentions "profile".
func FacebookDonorName(doc []byte) (string, error) {
	if !gjson.ValidBytes(doc) {
		return "", donation.New(donation.NoDonorNameFound, nil)
	}
	var name string
	found := false
	gjson.ParseBytes(doc).ForEach(func(key, value gjson.Result) bool {
		if !strings.Contains(key.String(), "profile") {
			return true
		}
		found = true
		name = textrepair.String(value.Get("name.full_name"))
		return false
	})
	if !found || strings.TrimSpace(name) == "" {
		return "", donation.New(donation.NoDonorNameFound, nil)
	}
	return name, nil
}

// InstagramDonorName reads profile_user[0].string_map_data.Name.value.
func InstagramDonorName(doc []byte) (string, error) {
	if !gjson.ValidBytes(doc) {
		return "", donation.New(donation.NoDonorNameFound, nil)
	}
	name := textrepair.String(gjson.GetBytes(doc, "profile_user.0.string_map_data.Name.value"))
	if strings.TrimSpace(name) == "" {
		return "", donation.New(donation.NoDonorNameFound, nil)
	}
	return name, nil
}
