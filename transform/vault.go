package transform

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/wtsi-hgi/shepherd/routing"
)

// vaultPath matches a Vault-internal staged/stashed address, grounded
// exactly on _VAULT_PATH from the original vault transformer: a group
// directory, a .vault branch directory, an arbitrary depth of two-hex-
// digit inode fan-out directories, and a base64(ish)-encoded path tail.
var vaultPath = regexp.MustCompile(
	`^(?P<prefix>.*?/(?P<type>[^/]+)/(?P<group>[^/]+))/\.vault/` +
		`(?P<branch>\.stashed|\.staged)(?:/[0-9a-f]{2})*/[0-9a-f]{2}-` +
		`(?P<encoded>[A-Za-z0-9+_/]+={0,2})$`,
)

// lustreRoot is the configured Lustre root a Vault address must begin
// with to be recognised at all.
const lustreRoot = "/lustre/scratch"

const humgenRoot = "/humgen"

// vaultEncoding is standard base64 with the non-standard "+_" alphabet
// (index-63 "/" swapped for "_"; index-62 "+" unchanged) the original
// uses for this one encoded path segment.
var vaultEncoding = base64.NewEncoding(
	"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+_",
)

// TeamMapping maps a POSIX group name (the owner of a Vault address's
// group directory) to its canonical team name, loaded from the
// configured teams.json.
type TeamMapping map[string]string

// GroupOwnerLookup resolves the POSIX group owner of a directory path,
// supplied by the caller since it is filesystem-specific (stat + group
// database lookup) and not part of the Capability contract.
type GroupOwnerLookup func(path string) (string, error)

func decodeVaultAlphabet(encoded string) (string, error) {
	// NOTE: the original uses a non-standard base64 alphabet ("+_" in
	// place of the standard "+/"), with path-separator slashes in the
	// matched string stripped before decoding.
	stripped := strings.ReplaceAll(encoded, "/", "")
	decoded, err := vaultEncoding.DecodeString(stripped)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// VaultTransformer builds the I/O transformer that rewrites Vault
// addresses to their canonical humgen target, per the vault transformer
// component design. Non-matching addresses are logged and dropped from
// the output stream, exactly as the original does ("is not recognised as
// a Vault path", logged critical).
func VaultTransformer(lookupGroup GroupOwnerLookup, teams TeamMapping, logger *slog.Logger) IOTransformer {
	return IOTransformer{
		Name: "vault_transformer",
		Cost: routing.On,
		Run: func(io []Pair) []Pair {
			out := make([]Pair, 0, len(io))
			for _, pair := range io {
				addr := pair.Source.Address
				if !strings.HasPrefix(addr, lustreRoot) {
					logger.Error("not recognised as a Vault path", "address", addr)
					continue
				}

				m := vaultPath.FindStringSubmatch(addr)
				if m == nil {
					logger.Error("not recognised as a Vault path", "address", addr)
					continue
				}
				groups := namedGroups(vaultPath, m)

				groupType := "teams"
				if groups["type"] == "projects" {
					groupType = "projects"
				}

				group := groups["group"]
				if owner, err := lookupGroup(groups["prefix"]); err == nil {
					if mapped, ok := teams[owner]; ok {
						group = mapped
					}
				}

				// The Lustre volume is the second path component
				// (component zero is the empty string before the
				// leading slash).
				parts := strings.Split(addr, "/")
				var volume string
				if len(parts) > 2 {
					volume = parts[2]
				}

				decoded, err := decodeVaultAlphabet(groups["encoded"])
				if err != nil {
					logger.Error("vault path decode failed", "address", addr, "error", err)
					continue
				}

				canonical := humgenRoot + "/" + groupType + "/" + group
				if groups["branch"] == ".stashed" {
					canonical += "/stashed"
				}
				canonical += "/" + volume + "/" + decoded

				logger.Debug("vault address mapped", "from", addr, "to", canonical)

				pair.Target.Address = canonical
				out = append(out, pair)
			}
			return out
		},
	}
}

func namedGroups(re *regexp.Regexp, match []string) map[string]string {
	result := make(map[string]string, len(match))
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		result[name] = match[i]
	}
	return result
}

// LoadTeamMapping parses a teams.json document of the shape
// {"posix-group-name": "team-name", ...}.
func LoadTeamMapping(data []byte) (TeamMapping, error) {
	var m TeamMapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
