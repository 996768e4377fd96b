package extractor

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\(?\d[\d\s().\-]{6,}\d`)
	spacePattern = regexp.MustCompile(`\s+`)

	// Matched against email candidates to drop asset names like logo@2x.png
	// that the body-text regex picks up.
	assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}

	socialHosts = map[string]string{
		"facebook.com":  "facebook",
		"instagram.com": "instagram",
		"linkedin.com":  "linkedin",
		"twitter.com":   "twitter",
		"x.com":         "twitter",
		"youtube.com":   "youtube",
		"tiktok.com":    "tiktok",
	}

	contactPathHints = []string{"contact", "about", "team", "impressum", "kontakt", "legal"}
)

// pageData holds everything a single parsed page contributes to a lead.
type pageData struct {
	companyName string
	emails      []string
	phones      []string
	address     string
	socials     map[string]string
	links       []string
}

// parsePage extracts contact signals from one HTML document. base is the
// page's own URL and anchors relative link resolution.
func parsePage(body []byte, base *url.URL) (pageData, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pageData{}, err
	}

	data := pageData{socials: map[string]string{}}
	data.companyName = companyName(doc)
	data.address = postalAddress(doc)

	seenEmails := map[string]bool{}
	seenPhones := map[string]bool{}
	seenLinks := map[string]bool{}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		switch {
		case strings.HasPrefix(strings.ToLower(href), "mailto:"):
			addEmail(&data, seenEmails, strings.SplitN(href[len("mailto:"):], "?", 2)[0])
		case strings.HasPrefix(strings.ToLower(href), "tel:"):
			addPhone(&data, seenPhones, href[len("tel:"):])
		default:
			if resolved := resolveLink(href, base); resolved != nil {
				if platform := socialPlatform(resolved); platform != "" {
					if _, taken := data.socials[platform]; !taken {
						data.socials[platform] = resolved.String()
					}
					return
				}
				link := resolved.String()
				if !seenLinks[link] {
					seenLinks[link] = true
					data.links = append(data.links, link)
				}
			}
		}
	})

	text := doc.Text()
	for _, match := range emailPattern.FindAllString(text, -1) {
		addEmail(&data, seenEmails, match)
	}
	for _, match := range phonePattern.FindAllString(text, -1) {
		addPhone(&data, seenPhones, match)
	}

	return data, nil
}

func companyName(doc *goquery.Document) string {
	if name, ok := doc.Find(`meta[property="og:site_name"]`).Attr("content"); ok {
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	for _, sep := range []string{" | ", " - ", " – ", " — "} {
		if idx := strings.Index(title, sep); idx > 0 {
			title = title[:idx]
			break
		}
	}
	return strings.TrimSpace(title)
}

func postalAddress(doc *goquery.Document) string {
	for _, selector := range []string{"address", `[itemprop="address"]`} {
		if text := collapseSpace(doc.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func addEmail(data *pageData, seen map[string]bool, raw string) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if !emailPattern.MatchString(email) {
		return
	}
	for _, suffix := range assetSuffixes {
		if strings.HasSuffix(email, suffix) {
			return
		}
	}
	if !seen[email] {
		seen[email] = true
		data.emails = append(data.emails, email)
	}
}

func addPhone(data *pageData, seen map[string]bool, raw string) {
	phone := normalizePhone(raw)
	if phone == "" {
		return
	}
	if !seen[phone] {
		seen[phone] = true
		data.phones = append(data.phones, phone)
	}
}

// normalizePhone strips formatting and rejects strings whose digit count
// falls outside plausible phone number lengths.
func normalizePhone(raw string) string {
	var b strings.Builder
	digits := 0
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			digits++
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	if digits < 7 || digits > 15 {
		return ""
	}
	return b.String()
}

func resolveLink(href string, base *url.URL) *url.URL {
	lower := strings.ToLower(href)
	if href == "" || strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(href, "#") {
		return nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return nil
	}
	ref.Fragment = ""
	return ref
}

func socialPlatform(u *url.URL) string {
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	for domain, platform := range socialHosts {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return platform
		}
	}
	return ""
}

// contactCandidates filters links down to same-host pages likely to carry
// contact details, preserving discovery order.
func contactCandidates(links []string, base *url.URL) []string {
	if base == nil {
		return nil
	}
	var out []string
	for _, link := range links {
		u, err := url.Parse(link)
		if err != nil {
			continue
		}
		if !strings.EqualFold(u.Hostname(), base.Hostname()) {
			continue
		}
		path := strings.ToLower(u.Path)
		for _, hint := range contactPathHints {
			if strings.Contains(path, hint) {
				out = append(out, link)
				break
			}
		}
	}
	return out
}

func collapseSpace(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}
