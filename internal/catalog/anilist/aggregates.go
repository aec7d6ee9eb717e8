package anilist

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/log"
)

// Recommendations returns titles the catalog recommends alongside a media id
func (c *Client) Recommendations(ctx context.Context, mediaID int) ([]*domain.MediaItem, error) {
	query := `
        query ($mediaId: Int) {
            Media(id: $mediaId) {
                recommendations(sort: RATING_DESC, perPage: 25) {
                    nodes {
                        mediaRecommendation {` + mediaFields + `}
                    }
                }
            }
        }
    `

	var response struct {
		Media struct {
			Recommendations struct {
				Nodes []struct {
					MediaRecommendation *mediaNode `json:"mediaRecommendation"`
				} `json:"nodes"`
			} `json:"recommendations"`
		}
	}

	if err := c.query(ctx, query, map[string]interface{}{"mediaId": mediaID}, &response); err != nil {
		return nil, fmt.Errorf("fetching recommendations: %w", err)
	}

	var items []*domain.MediaItem
	for _, node := range response.Media.Recommendations.Nodes {
		if node.MediaRecommendation != nil {
			items = append(items, node.MediaRecommendation.toMediaItem())
		}
	}
	return items, nil
}

// Characters returns the characters attached to a media id
func (c *Client) Characters(ctx context.Context, mediaID int) ([]domain.CharacterInfo, error) {
	query := `
        query ($mediaId: Int) {
            Media(id: $mediaId) {
                characters(sort: ROLE, perPage: 25) {
                    edges {
                        role
                        node {
                            name {
                                full
                            }
                            image {
                                medium
                            }
                            gender
                        }
                    }
                }
            }
        }
    `

	var response struct {
		Media struct {
			Characters struct {
				Edges []struct {
					Role string `json:"role"`
					Node struct {
						Name struct {
							Full string `json:"full"`
						} `json:"name"`
						Image struct {
							Medium string `json:"medium"`
						} `json:"image"`
						Gender string `json:"gender"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"characters"`
		}
	}

	if err := c.query(ctx, query, map[string]interface{}{"mediaId": mediaID}, &response); err != nil {
		return nil, fmt.Errorf("fetching characters: %w", err)
	}

	var characters []domain.CharacterInfo
	for _, edge := range response.Media.Characters.Edges {
		characters = append(characters, domain.CharacterInfo{
			Name:   edge.Node.Name.Full,
			Role:   edge.Role,
			Image:  edge.Node.Image.Medium,
			Gender: edge.Node.Gender,
		})
	}
	return characters, nil
}

// RelatedAnime returns related anime entries, skipping non-anime relations
func (c *Client) RelatedAnime(ctx context.Context, mediaID int) ([]*domain.MediaItem, error) {
	query := `
        query ($mediaId: Int) {
            Media(id: $mediaId) {
                relations {
                    nodes {` + mediaFields + `}
                }
            }
        }
    `

	var response struct {
		Media struct {
			Relations struct {
				Nodes []mediaNode `json:"nodes"`
			} `json:"relations"`
		}
	}

	if err := c.query(ctx, query, map[string]interface{}{"mediaId": mediaID}, &response); err != nil {
		return nil, fmt.Errorf("fetching relations: %w", err)
	}

	var items []*domain.MediaItem
	for i := range response.Media.Relations.Nodes {
		node := &response.Media.Relations.Nodes[i]
		if node.Type != string(domain.KindAnime) {
			continue
		}
		items = append(items, node.toMediaItem())
	}
	return items, nil
}

// AiringSchedule returns the upcoming airing schedule for a media id
func (c *Client) AiringSchedule(ctx context.Context, mediaID int) ([]domain.AiringScheduleItem, error) {
	query := `
        query ($mediaId: Int) {
            Media(id: $mediaId) {
                airingSchedule(notYetAired: true, perPage: 25) {
                    nodes {
                        episode
                        airingAt
                    }
                }
            }
        }
    `

	var response struct {
		Media struct {
			AiringSchedule struct {
				Nodes []struct {
					Episode  int   `json:"episode"`
					AiringAt int64 `json:"airingAt"`
				} `json:"nodes"`
			} `json:"airingSchedule"`
		}
	}

	if err := c.query(ctx, query, map[string]interface{}{"mediaId": mediaID}, &response); err != nil {
		return nil, fmt.Errorf("fetching airing schedule: %w", err)
	}

	var schedule []domain.AiringScheduleItem
	for _, node := range response.Media.AiringSchedule.Nodes {
		schedule = append(schedule, domain.AiringScheduleItem{
			Episode:  node.Episode,
			AiringAt: node.AiringAt,
		})
	}
	return schedule, nil
}

// Reviews returns user reviews for a media id
func (c *Client) Reviews(ctx context.Context, mediaID int) ([]domain.Review, error) {
	query := `
        query ($mediaId: Int) {
            Media(id: $mediaId) {
                reviews(sort: RATING_DESC, perPage: 25) {
                    nodes {
                        summary
                        body
                        score
                        user {
                            name
                        }
                    }
                }
            }
        }
    `

	var response struct {
		Media struct {
			Reviews struct {
				Nodes []struct {
					Summary string `json:"summary"`
					Body    string `json:"body"`
					Score   int    `json:"score"`
					User    struct {
						Name string `json:"name"`
					} `json:"user"`
				} `json:"nodes"`
			} `json:"reviews"`
		}
	}

	if err := c.query(ctx, query, map[string]interface{}{"mediaId": mediaID}, &response); err != nil {
		return nil, fmt.Errorf("fetching reviews: %w", err)
	}

	var reviews []domain.Review
	for _, node := range response.Media.Reviews.Nodes {
		reviews = append(reviews, domain.Review{
			Summary: node.Summary,
			Body:    node.Body,
			Score:   node.Score,
			Author:  node.User.Name,
		})
	}
	return reviews, nil
}

// Notifications fetches unread airing notifications.  The remote resets its
// unread counter when asked, so each notification is returned exactly once.
func (c *Client) Notifications(ctx context.Context) ([]domain.Notification, error) {
	if !c.IsAuthenticated() {
		return nil, fmt.Errorf("fetching notifications: not authenticated")
	}

	countQuery := `
        query {
            Viewer {
                unreadNotificationCount
            }
        }
    `

	var viewer struct {
		Viewer struct {
			UnreadNotificationCount int `json:"unreadNotificationCount"`
		}
	}
	if err := c.query(ctx, countQuery, nil, &viewer); err != nil {
		return nil, fmt.Errorf("fetching notification count: %w", err)
	}
	if viewer.Viewer.UnreadNotificationCount == 0 {
		return nil, nil
	}

	query := `
        query ($perPage: Int) {
            Page(page: 1, perPage: $perPage) {
                notifications(type_in: [AIRING], resetNotificationCount: true) {
                    ... on AiringNotification {
                        id
                        episode
                        createdAt
                        media {
                            id
                            title {
                                romaji
                                english
                                native
                            }
                        }
                    }
                }
            }
        }
    `

	var response struct {
		Page struct {
			Notifications []struct {
				ID        int   `json:"id"`
				Episode   int   `json:"episode"`
				CreatedAt int64 `json:"createdAt"`
				Media     struct {
					ID    int `json:"id"`
					Title struct {
						Romaji  string `json:"romaji"`
						English string `json:"english"`
						Native  string `json:"native"`
					} `json:"title"`
				} `json:"media"`
			} `json:"notifications"`
		}
	}

	variables := map[string]interface{}{"perPage": viewer.Viewer.UnreadNotificationCount}
	if err := c.query(ctx, query, variables, &response); err != nil {
		return nil, fmt.Errorf("fetching notifications: %w", err)
	}

	var notifications []domain.Notification
	for _, node := range response.Page.Notifications {
		// Non-airing notification types decode as zero-valued entries
		if node.ID == 0 {
			continue
		}
		title := domain.MediaTitle{
			Romaji:  node.Media.Title.Romaji,
			English: node.Media.Title.English,
			Native:  node.Media.Title.Native,
		}
		notifications = append(notifications, domain.Notification{
			ID:        node.ID,
			MediaID:   node.Media.ID,
			Title:     title.Preferred(),
			Episode:   strconv.Itoa(node.Episode),
			CreatedAt: node.CreatedAt,
		})
	}

	log.Info("Fetched airing notifications", "count", len(notifications))
	return notifications, nil
}
