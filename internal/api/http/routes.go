package httpapi

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-ensemble/internal/ensemble"
	"github.com/i474232898/weather-ensemble/internal/store"
	"github.com/i474232898/weather-ensemble/internal/weather"
)

var validate = validator.New()

// ModelDefaults fill in the distance and limit of model runs when the
// request does not carry them.
type ModelDefaults struct {
	MaxDistance int
	Limit       int
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service, defaults ModelDefaults) {
	v1 := app.Group("/api/v1")

	v1.Get("/weights", func(c *fiber.Ctx) error {
		var q distanceQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		rec, err := service.Weights(q.Location.toLocation(), q.Distance)
		if err != nil {
			return failure(err, "no weights for requested location and distance")
		}
		return c.JSON(rec)
	})

	v1.Get("/forecast", func(c *fiber.Ctx) error {
		var q forecastQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		loc := q.Location.toLocation()
		recs, err := service.Forecast(loc, q.Distance, q.From)
		if err != nil {
			return failure(err, "no fused forecast for requested location and distance")
		}
		return c.JSON(fiber.Map{
			"location":         loc,
			"forecastDistance": q.Distance,
			"forecast":         recs,
		})
	})

	v1.Get("/errors", func(c *fiber.Ctx) error {
		var q distanceQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		loc := q.Location.toLocation()
		recs, err := service.Errors(loc, q.Distance)
		if err != nil {
			return failure(err, "no cross-validation errors for requested location and distance")
		}
		return c.JSON(fiber.Map{
			"location":         loc,
			"forecastDistance": q.Distance,
			"latestMean":       recs[len(recs)-1].Mean(),
			"errors":           recs,
		})
	})

	v1.Post("/fetch", func(c *fiber.Ctx) error {
		loc, err := parseLocationQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := service.FetchAndStore(c.UserContext(), loc.toLocation()); err != nil {
			return failure(err, "")
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	v1.Post("/reduce", func(c *fiber.Ctx) error {
		q := runQuery{MaxDistance: defaults.MaxDistance, Limit: defaults.Limit}
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		recs, err := service.Reduce(c.UserContext(), q.Location.toLocation(), q.MaxDistance, q.Limit)
		if err != nil {
			return failure(err, "nothing to learn from for requested location")
		}
		return c.JSON(fiber.Map{"weights": recs})
	})

	v1.Post("/produce", func(c *fiber.Ctx) error {
		q := runQuery{MaxDistance: defaults.MaxDistance, Limit: defaults.Limit}
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		recs, err := service.Produce(c.UserContext(), q.Location.toLocation(), q.MaxDistance, q.Limit)
		if err != nil {
			return failure(err, "nothing to produce for requested location")
		}
		return c.JSON(fiber.Map{"forecast": recs})
	})
}

// failure maps service errors onto HTTP errors. notFound replaces the
// message of 404 responses when set.
func failure(err error, notFound string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		if notFound == "" {
			notFound = err.Error()
		}
		return fiber.NewError(fiber.StatusNotFound, notFound)
	case errors.Is(err, weather.ErrNoReadings):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	case errors.Is(err, ensemble.ErrShapeMismatch),
		errors.Is(err, ensemble.ErrLabelCountMismatch),
		errors.Is(err, ensemble.ErrEmptyPrediction),
		errors.Is(err, ensemble.ErrHeterogeneousData),
		errors.Is(err, ensemble.ErrPathNotFound),
		errors.Is(err, ensemble.ErrConfiguration):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

// locationQuery holds query parameters for identifying a location.
type locationQuery struct {
	City    string `validate:"required"`
	Country string `validate:"required"`
}

func (l locationQuery) toLocation() weather.Location {
	return weather.Location{
		City:    l.City,
		Country: l.Country,
	}
}

func parseLocationQuery(c *fiber.Ctx) (locationQuery, error) {
	var q locationQuery

	q.City = c.Query("city")
	q.Country = c.Query("country")

	if err := validate.Struct(q); err != nil {
		return q, err
	}

	return q, nil
}

// distanceQuery selects one modelled (location, distance).
type distanceQuery struct {
	Location locationQuery
	Distance int `validate:"gte=0"`
}

func (q *distanceQuery) bind(c *fiber.Ctx) error {
	loc, err := parseLocationQuery(c)
	if err != nil {
		return err
	}
	q.Location = loc
	if q.Distance, err = queryInt(c, "distance", 0); err != nil {
		return err
	}
	return validate.Struct(q)
}

type forecastQuery struct {
	distanceQuery
	// From keeps labels on or after this date.
	From string `validate:"omitempty,datetime=2006-01-02"`
}

func (q *forecastQuery) bind(c *fiber.Ctx) error {
	if err := q.distanceQuery.bind(c); err != nil {
		return err
	}
	q.From = c.Query("from")
	return validate.Struct(q)
}

// runQuery parameterizes reduce and produce runs. A negative max means every
// stored distance.
type runQuery struct {
	Location    locationQuery
	MaxDistance int
	Limit       int `validate:"gte=0"`
}

func (q *runQuery) bind(c *fiber.Ctx) error {
	loc, err := parseLocationQuery(c)
	if err != nil {
		return err
	}
	q.Location = loc
	if q.MaxDistance, err = queryInt(c, "max", q.MaxDistance); err != nil {
		return err
	}
	if q.Limit, err = queryInt(c, "limit", q.Limit); err != nil {
		return err
	}
	return validate.Struct(q)
}

func queryInt(c *fiber.Ctx, key string, def int) (int, error) {
	s := c.Query(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}
