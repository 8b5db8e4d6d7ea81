package google_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-scraper/pkg/google"
	"github.com/sells-group/lead-scraper/pkg/google/mocks"
)

func firstPage(req google.TextSearchRequest) bool { return req.PageToken == "" }

func TestAreaSearcher_FollowsPagination(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, mock.MatchedBy(firstPage)).
		Return(&google.TextSearchResponse{
			Places:        []google.Place{{ID: "a"}, {ID: "b"}, {ID: ""}},
			NextPageToken: "t2",
		}, nil).Once()
	client.On("TextSearch", mock.Anything, mock.MatchedBy(func(req google.TextSearchRequest) bool {
		return req.PageToken == "t2"
	})).Return(&google.TextSearchResponse{
		Places: []google.Place{{ID: "b"}, {ID: "c"}},
	}, nil).Once()

	s := google.NewAreaSearcher(client, google.WithPageDelay(0))
	ids, err := s.SearchAt(context.Background(), "dentists", 40.0, -111.5)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestAreaSearcher_RequestShape(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, mock.MatchedBy(func(req google.TextSearchRequest) bool {
		return req.TextQuery == "roofers" &&
			req.LanguageCode == "en" &&
			req.MaxResultCount == 20 &&
			req.LocationBias != nil &&
			req.LocationBias.Circle.Radius == 1000 &&
			req.LocationBias.Circle.Center == google.LatLng{Latitude: 37, Longitude: -112}
	})).Return(&google.TextSearchResponse{}, nil).Once()

	s := google.NewAreaSearcher(client, google.WithRadius(1000))
	ids, err := s.SearchAt(context.Background(), "roofers", 37, -112)

	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAreaSearcher_PartialResultsOnError(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, mock.MatchedBy(firstPage)).
		Return(&google.TextSearchResponse{Places: []google.Place{{ID: "a"}}, NextPageToken: "t2"}, nil).Once()
	client.On("TextSearch", mock.Anything, mock.Anything).
		Return(nil, errors.New("boom")).Once()

	s := google.NewAreaSearcher(client, google.WithPageDelay(0))
	ids, err := s.SearchAt(context.Background(), "q", 1, 2)

	assert.EqualError(t, err, "boom")
	assert.Equal(t, []string{"a"}, ids)
}
