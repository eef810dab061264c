package tags

import (
	"fmt"

	"github.com/3leaps/wheelfetch/internal/hostenv"
)

var legacyManylinux = map[hostenv.Version]string{
	{Major: 2, Minor: 17}: "manylinux2014",
	{Major: 2, Minor: 12}: "manylinux2010",
	{Major: 2, Minor: 5}:  "manylinux1",
}

// Platforms returns the platform tags for in, most specific first.
func Platforms(in hostenv.Interpreter) []string {
	switch in.OS {
	case "linux":
		return linuxPlatforms(in)
	case "darwin":
		return macPlatforms(in.MacOS, in.Arch)
	default:
		if in.Platform == "" {
			return nil
		}
		return []string{in.Platform}
	}
}

func linuxPlatforms(in hostenv.Interpreter) []string {
	archs := []string{in.Arch}
	if in.Arch == "armv8l" {
		archs = []string{"armv8l", "armv7l"}
	}

	var out []string
	if !in.Glibc.IsZero() {
		out = append(out, manylinuxPlatforms(in.Glibc, archs)...)
	}
	if !in.Musl.IsZero() {
		for _, arch := range archs {
			for minor := in.Musl.Minor; minor >= 0; minor-- {
				out = append(out, fmt.Sprintf("musllinux_%d_%d_%s", in.Musl.Major, minor, arch))
			}
		}
	}
	for _, arch := range archs {
		out = append(out, "linux_"+arch)
	}
	return out
}

func manylinuxPlatforms(glibc hostenv.Version, archs []string) []string {
	// glibc 2.17 is the oldest baseline outside x86.
	minMinor := 16
	for _, arch := range archs {
		if arch == "x86_64" || arch == "i686" {
			minMinor = 4
		}
	}
	if glibc.Major != 2 {
		return nil
	}

	var out []string
	for _, arch := range archs {
		for minor := glibc.Minor; minor > minMinor; minor-- {
			out = append(out, fmt.Sprintf("manylinux_2_%d_%s", minor, arch))
			if legacy, ok := legacyManylinux[hostenv.Version{Major: 2, Minor: minor}]; ok {
				out = append(out, legacy+"_"+arch)
			}
		}
	}
	return out
}

func macBinaryFormats(version hostenv.Version, arch string) []string {
	formats := []string{arch}
	tenFour := hostenv.Version{Major: 10, Minor: 4}
	switch arch {
	case "x86_64":
		if version.Less(tenFour) {
			return nil
		}
		formats = append(formats, "intel", "fat64", "fat32")
	case "i386":
		if version.Less(tenFour) {
			return nil
		}
		formats = append(formats, "intel", "fat32", "fat")
	}
	if arch == "arm64" || arch == "x86_64" {
		formats = append(formats, "universal2")
	}
	if arch == "x86_64" || arch == "i386" {
		formats = append(formats, "universal")
	}
	return formats
}

func macPlatforms(version hostenv.Version, arch string) []string {
	var out []string
	emit := func(major, minor int, formats []string) {
		for _, f := range formats {
			out = append(out, fmt.Sprintf("macosx_%d_%d_%s", major, minor, f))
		}
	}

	eleven := hostenv.Version{Major: 11, Minor: 0}
	if version.Major == 10 {
		for minor := version.Minor; minor >= 0; minor-- {
			emit(10, minor, macBinaryFormats(hostenv.Version{Major: 10, Minor: minor}, arch))
		}
	}
	if !version.Less(eleven) {
		for major := version.Major; major > 10; major-- {
			emit(major, 0, macBinaryFormats(hostenv.Version{Major: major}, arch))
		}
		// Pre-11 releases only ever shipped x86_64 slices; arm64 can still
		// load universal2 wheels that declare an older x86_64 baseline.
		for minor := 16; minor > 3; minor-- {
			if arch == "x86_64" {
				emit(10, minor, macBinaryFormats(hostenv.Version{Major: 10, Minor: minor}, arch))
			} else {
				emit(10, minor, []string{"universal2"})
			}
		}
	}
	return out
}
