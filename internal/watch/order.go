package watch

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var runs = regexp.MustCompile(`\d+|\D+`)

// naturalCompare orders file names the way people number them, so
// "bom2.xlsx" sorts before "bom10.xlsx". Only the base name is compared.
func naturalCompare(a, b string) int {
	ra := runs.FindAllString(strings.ToLower(filepath.Base(a)), -1)
	rb := runs.FindAllString(strings.ToLower(filepath.Base(b)), -1)
	for i := 0; i < len(ra) && i < len(rb); i++ {
		na, errA := strconv.Atoi(ra[i])
		nb, errB := strconv.Atoi(rb[i])
		switch {
		case errA == nil && errB == nil:
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
		case errA == nil:
			return -1
		case errB == nil:
			return 1
		default:
			if c := strings.Compare(ra[i], rb[i]); c != 0 {
				return c
			}
		}
	}
	switch {
	case len(ra) < len(rb):
		return -1
	case len(ra) > len(rb):
		return 1
	}
	return strings.Compare(a, b)
}
