package graph

import (
	"context"
	"fmt"
	neturl "net/url"
)

type DriveService struct{ rest *rest }

func NewDriveService(m *Manager) *DriveService { return &DriveService{rest: newRest(m)} }

func (s *DriveService) List(ctx context.Context, in *ListFilesInput, scopes []string, prompt func(string)) (*ListFilesOutput, error) {
	if in.Top == 0 {
		in.Top = 25
	}
	path := "/me/drive/root/children"
	if in.FolderID != "" {
		path = "/me/drive/items/" + neturl.PathEscape(in.FolderID) + "/children"
	}
	q := neturl.Values{}
	q.Set("$top", fmt.Sprintf("%d", in.Top))
	q.Set("$orderby", "lastModifiedDateTime DESC")
	var payload struct {
		Value []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Size     int64  `json:"size"`
			WebURL   string `json:"webUrl"`
			Modified string `json:"lastModifiedDateTime"`
			Folder   *struct {
				ChildCount int `json:"childCount"`
			} `json:"folder"`
		} `json:"value"`
	}
	if err := s.rest.getJSON(ctx, in.Account, scopes, prompt, path, q, &payload); err != nil {
		return nil, err
	}
	out := &ListFilesOutput{}
	for _, item := range payload.Value {
		out.Items = append(out.Items, DriveItem{
			ID:          item.ID,
			Name:        item.Name,
			SizeBytes:   item.Size,
			ModifiedISO: item.Modified,
			IsFolder:    item.Folder != nil,
			WebURL:      item.WebURL,
		})
	}
	return out, nil
}

// Download resolves a short-lived download URL for one drive item. The bytes
// themselves never pass through the gateway.
func (s *DriveService) Download(ctx context.Context, in *DownloadFileInput, scopes []string, prompt func(string)) (*DownloadFileOutput, error) {
	if in.ItemID == "" {
		return nil, fmt.Errorf("itemId is required")
	}
	var payload struct {
		Name        string `json:"name"`
		Size        int64  `json:"size"`
		DownloadURL string `json:"@microsoft.graph.downloadUrl"`
	}
	path := "/me/drive/items/" + neturl.PathEscape(in.ItemID)
	if err := s.rest.getJSON(ctx, in.Account, scopes, prompt, path, neturl.Values{}, &payload); err != nil {
		return nil, err
	}
	if payload.DownloadURL == "" {
		return nil, fmt.Errorf("item %s has no download url", in.ItemID)
	}
	return &DownloadFileOutput{Name: payload.Name, SizeBytes: payload.Size, DownloadURL: payload.DownloadURL}, nil
}

type ProfileService struct{ rest *rest }

func NewProfileService(m *Manager) *ProfileService { return &ProfileService{rest: newRest(m)} }

func (s *ProfileService) Get(ctx context.Context, in *GetProfileInput, scopes []string, prompt func(string)) (*Profile, error) {
	var payload struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
		Mail        string `json:"mail"`
		JobTitle    string `json:"jobTitle"`
	}
	if err := s.rest.getJSON(ctx, in.Account, scopes, prompt, "/me", neturl.Values{}, &payload); err != nil {
		return nil, err
	}
	return &Profile{ID: payload.ID, DisplayName: payload.DisplayName, Mail: payload.Mail, JobTitle: payload.JobTitle}, nil
}
