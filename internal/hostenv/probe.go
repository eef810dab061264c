package hostenv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

const maxCommandError = 512

// probeScript prints the interpreter facts as a single JSON object.
const probeScript = `import json, os, platform, struct, sys, sysconfig
def glibc():
    try:
        v = os.confstr("CS_GNU_LIBC_VERSION")
    except (AttributeError, OSError, ValueError):
        return ""
    return v or ""
print(json.dumps({
    "implementation": sys.implementation.name,
    "version": [sys.version_info[0], sys.version_info[1]],
    "debug": hasattr(sys, "gettotalrefcount"),
    "free_threaded": bool(sysconfig.get_config_var("Py_GIL_DISABLED")),
    "soabi": sysconfig.get_config_var("SOABI") or "",
    "platform": sysconfig.get_platform(),
    "machine": platform.machine(),
    "pointer_bits": struct.calcsize("P") * 8,
    "mac_ver": platform.mac_ver()[0],
    "glibc": glibc(),
    "executable": sys.executable,
}))
`

type probeResult struct {
	Implementation string `json:"implementation"`
	Version        []int  `json:"version"`
	Debug          bool   `json:"debug"`
	FreeThreaded   bool   `json:"free_threaded"`
	SOABI          string `json:"soabi"`
	Platform       string `json:"platform"`
	Machine        string `json:"machine"`
	PointerBits    int    `json:"pointer_bits"`
	MacVer         string `json:"mac_ver"`
	Glibc          string `json:"glibc"`
	Executable     string `json:"executable"`
}

// Probe runs python once and returns the facts needed for tag computation.
func Probe(ctx context.Context, python string) (Interpreter, error) {
	if strings.TrimSpace(python) == "" {
		return Interpreter{}, fmt.Errorf("python executable is not configured")
	}
	cmd := exec.CommandContext(ctx, python, "-c", probeScript)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Interpreter{}, fmt.Errorf("probe %s: %w: %s", python, err, trimCommandOutput(stderr.String()))
	}

	in, err := decodeProbe(stdout.Bytes())
	if err != nil {
		return Interpreter{}, fmt.Errorf("probe %s: %w", python, err)
	}
	if in.OS == "linux" && in.Glibc.IsZero() {
		if v, ok := DetectMusl(ctx, in.Executable); ok {
			in.Musl = v
		}
	}
	return in, nil
}

func decodeProbe(data []byte) (Interpreter, error) {
	var res probeResult
	if err := json.Unmarshal(bytes.TrimSpace(data), &res); err != nil {
		return Interpreter{}, fmt.Errorf("decode probe output: %w", err)
	}
	if len(res.Version) < 2 {
		return Interpreter{}, fmt.Errorf("probe output is missing the python version")
	}

	in := Interpreter{
		Implementation: strings.ToLower(res.Implementation),
		Python:         Version{Major: res.Version[0], Minor: res.Version[1]},
		Debug:          res.Debug,
		FreeThreaded:   res.FreeThreaded,
		SOABI:          res.SOABI,
		Platform:       normalizePlatform(res.Platform),
		Executable:     res.Executable,
	}

	switch {
	case strings.HasPrefix(in.Platform, "linux"):
		in.OS = "linux"
		in.Arch = strings.TrimPrefix(in.Platform, "linux_")
		if res.PointerBits == 32 {
			// 32-bit interpreter on a 64-bit kernel
			switch in.Arch {
			case "x86_64":
				in.Arch = "i686"
			case "aarch64":
				in.Arch = "armv8l"
			}
		}
		in.Platform = "linux_" + in.Arch
		if g := strings.TrimSpace(res.Glibc); strings.HasPrefix(g, "glibc ") {
			if v, err := ParseVersion(strings.TrimPrefix(g, "glibc ")); err == nil {
				in.Glibc = v
			}
		}
	case strings.HasPrefix(in.Platform, "macosx"):
		in.OS = "darwin"
		in.Arch = strings.ToLower(res.Machine)
		if v, err := ParseVersion(res.MacVer); err == nil {
			in.MacOS = v
		} else if parts := strings.SplitN(strings.TrimPrefix(in.Platform, "macosx_"), "_", 3); len(parts) == 3 {
			if v, err := ParseVersion(parts[0] + "." + parts[1]); err == nil {
				in.MacOS = v
			}
		}
	case strings.HasPrefix(in.Platform, "win"):
		in.OS = "windows"
		in.Arch = strings.TrimPrefix(in.Platform, "win_")
	default:
		in.OS = in.Platform
		in.Arch = strings.ToLower(res.Machine)
	}
	return in, nil
}

func trimCommandOutput(out string) string {
	clean := strings.TrimSpace(out)
	if clean == "" {
		return "command failed"
	}
	if len(clean) > maxCommandError {
		return clean[:maxCommandError] + "..."
	}
	return clean
}
