package modinfo

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
)

// uniqueIDPattern validates mod unique ids (e.g. "Author.ModName").
var uniqueIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// manifestValidator returns the shared validator with the manifest rules registered.
func manifestValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		// Report JSON field names instead of Go field names
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return field.Name
			}
			return name
		})

		_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
			_, err := semver.NewVersion(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("uniqueid", func(fl validator.FieldLevel) bool {
			return uniqueIDPattern.MatchString(fl.Field().String())
		})

		validate = v
	})
	return validate
}

// Validate checks the manifest's required fields and formats.
func (m *Manifest) Validate() error {
	if err := manifestValidator().Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q (value %q)", ErrInvalidManifest, fe.Namespace(), fe.Tag(), fmt.Sprint(fe.Value()))
		}
		return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	if m.IsContentPack() && m.EntryAssembly != "" {
		return fmt.Errorf("%w: a content pack cannot declare EntryAssembly", ErrInvalidManifest)
	}
	return nil
}

// CompareVersions compares two semantic versions, returning -1, 0 or 1.
// Unparseable versions sort before parseable ones.
func CompareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return va.Compare(vb)
}

// IsVersionAtLeast reports whether version satisfies the minimum.
// An empty minimum is always satisfied.
func IsVersionAtLeast(version, minimum string) bool {
	if minimum == "" {
		return true
	}
	return CompareVersions(version, minimum) >= 0
}
