package lib

import (
	"fmt"
	"net/url"
	"regexp"
)

// Platform identifies one of the supported content services.
type Platform string

const (
	PlatformPatreon       Platform = "patreon"
	PlatformFanbox        Platform = "fanbox"
	PlatformDiscord       Platform = "discord"
	PlatformFantia        Platform = "fantia"
	PlatformAfdian        Platform = "afdian"
	PlatformBoosty        Platform = "boosty"
	PlatformGumroad       Platform = "gumroad"
	PlatformSubscribestar Platform = "subscribestar"
	PlatformDLsite        Platform = "dlsite"
)

// Platforms lists every platform the aggregator indexes, in the order its
// API enumerates them.
var Platforms = []Platform{
	PlatformPatreon,
	PlatformFanbox,
	PlatformDiscord,
	PlatformFantia,
	PlatformAfdian,
	PlatformBoosty,
	PlatformGumroad,
	PlatformSubscribestar,
	PlatformDLsite,
}

// ValidPlatform reports whether s names a supported platform.
func ValidPlatform(s string) bool {
	for _, p := range Platforms {
		if string(p) == s {
			return true
		}
	}
	return false
}

// CanonicalResource is the normalized (platform, creator, optional post)
// triple every supported URL shape resolves to. An empty PostID means the
// whole creator.
type CanonicalResource struct {
	Platform  Platform
	CreatorID string
	PostID    string
}

func (r CanonicalResource) String() string {
	if r.PostID == "" {
		return fmt.Sprintf("%s/user/%s", r.Platform, r.CreatorID)
	}
	return fmt.Sprintf("%s/user/%s/post/%s", r.Platform, r.CreatorID, r.PostID)
}

// ProbeKind selects which embedded-metadata extraction a probe page needs.
type ProbeKind int

const (
	ProbeFanboxCreator ProbeKind = iota
	ProbeFantiaPost
	ProbePatreonCreator
	ProbePatreonPost
	ProbeGumroadCreator
)

// MetadataProbe describes a page fetch required to complete resolution: the
// creator id is embedded in the page at ProbeURL rather than in the URL
// itself. PostID is already known from the URL shape when non-empty.
type MetadataProbe struct {
	Platform Platform
	Kind     ProbeKind
	ProbeURL string
	PostID   string
}

// Resolution is the outcome of canonicalizing a URL. Exactly one of Resource
// and Probe is non-nil for a recognized URL; both are nil for an
// unrecognized one.
type Resolution struct {
	Resource *CanonicalResource
	Probe    *MetadataProbe
}

// Recognized reports whether the URL matched any platform shape rule.
func (r Resolution) Recognized() bool {
	return r.Resource != nil || r.Probe != nil
}

// Shape rules, one block per platform. Order matters: some hosts are
// ambiguous prefixes of others, so dispatch is on the exact hostname first
// and falls through to pattern hosts.
var (
	reAggregatorHost = regexp.MustCompile(`^kemono\.(party|su|cr)$`)
	reAggDiscord     = regexp.MustCompile(`^/discord/server/(\d+)(?:/(\d+))?$`)
	reAggPost        = regexp.MustCompile(`^/(\w+)/user/(\w+)/post/(\w+)$`)
	reAggCreator     = regexp.MustCompile(`^/(\w+)/user/(\w+)$`)

	reFanboxHost = regexp.MustCompile(`^\w+\.fanbox\.cc$`)
	reFanboxPost = regexp.MustCompile(`^https://\w+\.fanbox\.cc/posts/(\d+)`)

	rePixivCreator = regexp.MustCompile(`^https://(?:www\.)?pixiv\.net/fanbox/creator/(\d+)`)
	rePixivUser    = regexp.MustCompile(`^https://(?:www\.)?pixiv\.net/users/(\d+)`)
	rePixivMember  = regexp.MustCompile(`^https://(?:www\.)?pixiv\.net/member\.php\?id=(\d+)`)

	reFantia = regexp.MustCompile(`^https://fantia\.jp/(fanclubs|posts)/(\d+)`)

	rePatreonUserID = regexp.MustCompile(`^https://www\.patreon\.com/user(?:/posts)?\?u=(\d+)$`)
	rePatreonVanity = regexp.MustCompile(`^https://www\.patreon\.com/(\w+)/?`)
	rePatreonPost   = regexp.MustCompile(`^https://www\.patreon\.com/posts/.+-(\w+)/?$`)

	reGumroadHost    = regexp.MustCompile(`^\w+\.gumroad\.com$`)
	reGumroadProduct = regexp.MustCompile(`^https://\w+\.gumroad\.com/l/(\w+)`)
)

// Canonicalize maps a free-form URL onto a canonical resource, or onto a
// metadata probe when the creator id is only present in page content. It
// performs no network I/O. The zero Resolution means the URL is not
// recognized; garbage input never produces an error.
func Canonicalize(rawURL string) Resolution {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return Resolution{}
	}
	host := u.Hostname()

	switch {
	case reAggregatorHost.MatchString(host):
		return canonicalizeAggregatorPath(u.Path)

	case reFanboxHost.MatchString(host):
		probe := &MetadataProbe{
			Platform: PlatformFanbox,
			Kind:     ProbeFanboxCreator,
			ProbeURL: "https://" + host,
		}
		if m := reFanboxPost.FindStringSubmatch(rawURL); m != nil {
			probe.PostID = m[1]
		}
		return Resolution{Probe: probe}

	case host == "pixiv.net" || host == "www.pixiv.net":
		for _, re := range []*regexp.Regexp{rePixivCreator, rePixivUser, rePixivMember} {
			if m := re.FindStringSubmatch(rawURL); m != nil {
				return Resolution{Resource: &CanonicalResource{
					Platform:  PlatformFanbox,
					CreatorID: m[1],
				}}
			}
		}
		return Resolution{}

	case host == "fantia.jp":
		m := reFantia.FindStringSubmatch(rawURL)
		if m == nil {
			return Resolution{}
		}
		if m[1] == "fanclubs" {
			return Resolution{Resource: &CanonicalResource{
				Platform:  PlatformFantia,
				CreatorID: m[2],
			}}
		}
		// Post pages embed the fanclub id in a JSON-LD block.
		return Resolution{Probe: &MetadataProbe{
			Platform: PlatformFantia,
			Kind:     ProbeFantiaPost,
			ProbeURL: rawURL,
			PostID:   m[2],
		}}

	case host == "www.patreon.com":
		if m := rePatreonUserID.FindStringSubmatch(rawURL); m != nil {
			return Resolution{Resource: &CanonicalResource{
				Platform:  PlatformPatreon,
				CreatorID: m[1],
			}}
		}
		m := rePatreonVanity.FindStringSubmatch(rawURL)
		if m == nil {
			return Resolution{}
		}
		if m[1] == "posts" {
			pm := rePatreonPost.FindStringSubmatch(rawURL)
			if pm == nil {
				return Resolution{}
			}
			return Resolution{Probe: &MetadataProbe{
				Platform: PlatformPatreon,
				Kind:     ProbePatreonPost,
				ProbeURL: rawURL,
				PostID:   pm[1],
			}}
		}
		return Resolution{Probe: &MetadataProbe{
			Platform: PlatformPatreon,
			Kind:     ProbePatreonCreator,
			ProbeURL: rawURL,
		}}

	case reGumroadHost.MatchString(host):
		probe := &MetadataProbe{
			Platform: PlatformGumroad,
			Kind:     ProbeGumroadCreator,
			ProbeURL: "https://" + host,
		}
		if m := reGumroadProduct.FindStringSubmatch(rawURL); m != nil {
			probe.PostID = m[1]
		}
		return Resolution{Probe: probe}
	}

	return Resolution{}
}

// canonicalizeAggregatorPath parses a path on the aggregator's own domain,
// where the canonical triple is spelled out directly.
func canonicalizeAggregatorPath(path string) Resolution {
	if m := reAggDiscord.FindStringSubmatch(path); m != nil {
		return Resolution{Resource: &CanonicalResource{
			Platform:  PlatformDiscord,
			CreatorID: m[1],
			PostID:    m[2],
		}}
	}
	if m := reAggPost.FindStringSubmatch(path); m != nil {
		if !ValidPlatform(m[1]) {
			return Resolution{}
		}
		return Resolution{Resource: &CanonicalResource{
			Platform:  Platform(m[1]),
			CreatorID: m[2],
			PostID:    m[3],
		}}
	}
	if m := reAggCreator.FindStringSubmatch(path); m != nil {
		if !ValidPlatform(m[1]) {
			return Resolution{}
		}
		return Resolution{Resource: &CanonicalResource{
			Platform:  Platform(m[1]),
			CreatorID: m[2],
		}}
	}
	return Resolution{}
}
