package lib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// ErrUnrecognizedURL is returned when no platform shape rule matches the
// input URL. It is a normal, non-fatal outcome.
var ErrUnrecognizedURL = errors.New("unrecognized URL")

// metadataProber extracts the creator id from a platform's embedded-data
// location in a fetched page. One implementation per probing platform.
type metadataProber interface {
	extract(doc *goquery.Document, probe MetadataProbe) (CanonicalResource, error)
}

var probers = map[ProbeKind]metadataProber{
	ProbeFanboxCreator:  fanboxProber{},
	ProbeFantiaPost:     fantiaPostProber{},
	ProbePatreonCreator: patreonCreatorProber{},
	ProbePatreonPost:    patreonPostProber{},
	ProbeGumroadCreator: gumroadProber{},
}

// Resolver turns free-form URLs into canonical resources, fetching and
// parsing the source page when the URL shape alone is not enough.
type Resolver struct {
	fetcher *Fetcher
	logger  *zap.Logger
}

// NewResolver creates a Resolver using the given Fetcher for probe page
// fetches. A nil fetcher selects a default one; a nil logger discards.
func NewResolver(f *Fetcher, logger *zap.Logger) *Resolver {
	if f == nil {
		f = NewFetcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{fetcher: f, logger: logger}
}

// Resolve canonicalizes rawURL, probing the source page when required.
// Unrecognized URLs yield ErrUnrecognizedURL and a missing probe page yields
// ErrNotFound; both are normal outcomes, not crashes.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*CanonicalResource, error) {
	res := Canonicalize(rawURL)
	if !res.Recognized() {
		return nil, ErrUnrecognizedURL
	}
	if res.Resource != nil {
		return res.Resource, nil
	}

	probe := *res.Probe
	r.logger.Debug("probing source page",
		zap.String("platform", string(probe.Platform)),
		zap.String("url", probe.ProbeURL))

	body, err := r.fetcher.FetchURL(ctx, probe.ProbeURL)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching probe page: %w", err)
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parsing probe page: %w", err)
	}

	resource, err := probers[probe.Kind].extract(doc, probe)
	if err != nil {
		return nil, fmt.Errorf("resolving %s URL: %w", probe.Platform, err)
	}
	return &resource, nil
}

// fanboxProber recovers the numeric pixiv user id from the creator page's
// og:image URL, which points into the fanbox public image store.
type fanboxProber struct{}

var reFanboxOGImage = regexp.MustCompile(`^https://pixiv\.pximg\.net/c/\w+/fanbox/public/images/creator/(\d+)`)

func (fanboxProber) extract(doc *goquery.Document, probe MetadataProbe) (CanonicalResource, error) {
	content, ok := doc.Find("head > meta[property='og:image']").Attr("content")
	if !ok {
		return CanonicalResource{}, errors.New("og:image meta tag not found")
	}
	m := reFanboxOGImage.FindStringSubmatch(content)
	if m == nil {
		return CanonicalResource{}, errors.New("og:image does not carry a creator id")
	}
	return CanonicalResource{Platform: PlatformFanbox, CreatorID: m[1], PostID: probe.PostID}, nil
}

// fantiaPostProber reads the post page's JSON-LD block, whose author URL
// names the fanclub.
type fantiaPostProber struct{}

var reFantiaAuthor = regexp.MustCompile(`^https://fantia\.jp/fanclubs/(\d+)/?$`)

func (fantiaPostProber) extract(doc *goquery.Document, probe MetadataProbe) (CanonicalResource, error) {
	script := doc.Find("head script[type='application/ld+json']").First().Text()
	if script == "" {
		return CanonicalResource{}, errors.New("JSON-LD block not found")
	}
	var ld struct {
		Author struct {
			URL string `json:"url"`
		} `json:"author"`
	}
	if err := json.Unmarshal([]byte(script), &ld); err != nil {
		return CanonicalResource{}, fmt.Errorf("malformed JSON-LD block: %w", err)
	}
	m := reFantiaAuthor.FindStringSubmatch(ld.Author.URL)
	if m == nil {
		return CanonicalResource{}, errors.New("JSON-LD author URL does not name a fanclub")
	}
	return CanonicalResource{Platform: PlatformFantia, CreatorID: m[1], PostID: probe.PostID}, nil
}

// patreonBootstrap is the subset of the __NEXT_DATA__ payload carrying the
// creator relationship ids.
type patreonBootstrap struct {
	Props struct {
		PageProps struct {
			BootstrapEnvelope struct {
				Bootstrap struct {
					Campaign struct {
						Data struct {
							Relationships struct {
								Creator struct {
									Data struct {
										ID string `json:"id"`
									} `json:"data"`
								} `json:"creator"`
							} `json:"relationships"`
						} `json:"data"`
					} `json:"campaign"`
					Post struct {
						Data struct {
							Relationships struct {
								User struct {
									Data struct {
										ID string `json:"id"`
									} `json:"data"`
								} `json:"user"`
							} `json:"relationships"`
						} `json:"data"`
					} `json:"post"`
				} `json:"bootstrap"`
			} `json:"bootstrapEnvelope"`
		} `json:"pageProps"`
	} `json:"props"`
}

func parsePatreonBootstrap(doc *goquery.Document) (*patreonBootstrap, error) {
	script := doc.Find("#__NEXT_DATA__").First().Text()
	if script == "" {
		return nil, errors.New("__NEXT_DATA__ script not found")
	}
	var bootstrap patreonBootstrap
	if err := json.Unmarshal([]byte(script), &bootstrap); err != nil {
		return nil, fmt.Errorf("malformed __NEXT_DATA__: %w", err)
	}
	return &bootstrap, nil
}

type patreonCreatorProber struct{}

func (patreonCreatorProber) extract(doc *goquery.Document, probe MetadataProbe) (CanonicalResource, error) {
	bootstrap, err := parsePatreonBootstrap(doc)
	if err != nil {
		return CanonicalResource{}, err
	}
	id := bootstrap.Props.PageProps.BootstrapEnvelope.Bootstrap.Campaign.Data.Relationships.Creator.Data.ID
	if id == "" {
		return CanonicalResource{}, errors.New("campaign creator id not found")
	}
	return CanonicalResource{Platform: PlatformPatreon, CreatorID: id}, nil
}

type patreonPostProber struct{}

func (patreonPostProber) extract(doc *goquery.Document, probe MetadataProbe) (CanonicalResource, error) {
	bootstrap, err := parsePatreonBootstrap(doc)
	if err != nil {
		return CanonicalResource{}, err
	}
	id := bootstrap.Props.PageProps.BootstrapEnvelope.Bootstrap.Post.Data.Relationships.User.Data.ID
	if id == "" {
		return CanonicalResource{}, errors.New("post user id not found")
	}
	return CanonicalResource{Platform: PlatformPatreon, CreatorID: id, PostID: probe.PostID}, nil
}

// gumroadProber reads the profile page's Profile component JSON, which
// carries the creator's external id.
type gumroadProber struct{}

func (gumroadProber) extract(doc *goquery.Document, probe MetadataProbe) (CanonicalResource, error) {
	script := doc.Find("body script[data-component-name='Profile']").First().Text()
	if script == "" {
		return CanonicalResource{}, errors.New("Profile component script not found")
	}
	var profile struct {
		CreatorProfile struct {
			ExternalID string `json:"external_id"`
		} `json:"creator_profile"`
	}
	if err := json.Unmarshal([]byte(script), &profile); err != nil {
		return CanonicalResource{}, fmt.Errorf("malformed Profile component: %w", err)
	}
	if profile.CreatorProfile.ExternalID == "" {
		return CanonicalResource{}, errors.New("creator external id not found")
	}
	return CanonicalResource{Platform: PlatformGumroad, CreatorID: profile.CreatorProfile.ExternalID, PostID: probe.PostID}, nil
}
