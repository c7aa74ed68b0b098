package bitbucket

import "time"

// PullRequestInput describes a pull request to open.
type PullRequestInput struct {
	SourceBranch      string
	DestinationBranch string
	Title             string
	Description       string
}

// PullRequestRef is the host's handle on an opened pull request.
type PullRequestRef struct {
	ID  int    `json:"id"`
	URL string `json:"url"`
}

// Commit is one entry of a path's commit history.
type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
}
