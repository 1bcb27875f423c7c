package model

import "time"

// GithubMirror 一个可替代的 GitHub API 上游
type GithubMirror struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Release is the trimmed view of an upstream release.
type Release struct {
	ID         int64          `json:"id"`
	TagName    string         `json:"tag_name"`
	Prerelease bool           `json:"prerelease"`
	CreatedAt  string         `json:"created_at"`
	Assets     []ReleaseAsset `json:"assets"`
}

type ReleaseAsset struct {
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	DownloadCount      int64  `json:"download_count"`
	Digest             string `json:"digest"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// LatestVersion is served to machine clients from configuration.
type LatestVersion struct {
	Latest      string `json:"latest"`
	DownloadURL string `json:"downloadUrl"`
}
