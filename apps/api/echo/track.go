package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/jindoapp/jindo/core/track"
)

type trackApi struct {
	svc        *track.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerTrackAPI(
	g *echo.Group,
	svc *track.Service,
	validate *validator.Validate,
	translator ut.Translator,
) {
	api := trackApi{
		svc:        svc,
		validate:   validate,
		translator: translator,
	}

	dg := g.Group("/dashboard")
	dg.GET("", api.dashboard)
	dg.GET("/stats", api.stats)
	dg.POST("/invalidate", api.invalidate)

	sg := g.Group("/students")
	sg.GET("", api.queryStudents)
	sg.POST("", api.register)
	sg.DELETE("/:id", api.destroyStudent)
	sg.GET("/:id/summary", api.studentSummary)
	sg.GET("/:id/courses", api.studentCourses)
	sg.GET("/:id/progress", api.studentProgress)

	cg := g.Group("/courses")
	cg.GET("", api.queryCourses)
	cg.POST("", api.createCourse)
	cg.GET("/:id/lessons", api.courseLessons)
	cg.POST("/:id/lessons", api.createLesson)

	g.GET("/departments", api.departments)
	g.POST("/enrollments", api.enroll)
	g.DELETE("/enrollments", api.unenroll)
	g.PUT("/progress", api.toggleProgress)
}

// Handlers

func (api *trackApi) dashboard(ctx echo.Context) error {
	snap, err := api.svc.Dashboard(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, snap)
}

func (api *trackApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, statsResponse{
		Dashboard: stats,
		Cache:     api.svc.CacheStats(),
	})
}

func (api *trackApi) invalidate(ctx echo.Context) error {
	api.svc.InvalidateDashboard()
	return ctx.NoContent(http.StatusNoContent)
}

func (api *trackApi) queryStudents(ctx echo.Context) error {
	students, err := api.svc.Students(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *trackApi) register(ctx echo.Context) error {
	var data track.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.RegisterStudent(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering student")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *trackApi) destroyStudent(ctx echo.Context) error {
	if err := api.svc.DeleteStudent(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *trackApi) studentSummary(ctx echo.Context) error {
	sum, err := api.svc.Summary(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *trackApi) studentCourses(ctx echo.Context) error {
	courses, err := api.svc.StudentCourses(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *trackApi) studentProgress(ctx echo.Context) error {
	records, err := api.svc.StudentProgress(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *trackApi) queryCourses(ctx echo.Context) error {
	var (
		courses []track.Course
		err     error
	)
	if dept := ctx.QueryParam("department"); dept != "" {
		courses, err = api.svc.CoursesByDepartment(ctx.Request().Context(), dept)
	} else {
		courses, err = api.svc.Courses(ctx.Request().Context())
	}
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *trackApi) createCourse(ctx echo.Context) error {
	var data track.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	crs, err := api.svc.AddCourse(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *trackApi) courseLessons(ctx echo.Context) error {
	lessons, err := api.svc.CourseLessons(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *trackApi) createLesson(ctx echo.Context) error {
	var data NewLessonRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLessonRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	les, err := api.svc.AddLesson(ctx.Request().Context(), ctx.Param("id"), data.Name)
	if err != nil {
		return errors.Wrap(err, "creating lesson")
	}
	return ctx.JSON(http.StatusCreated, les)
}

func (api *trackApi) departments(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, track.Departments)
}

func (api *trackApi) enroll(ctx echo.Context) error {
	var data EnrollmentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnrollmentRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	enr, err := api.svc.EnrollStudent(ctx.Request().Context(), data.UserID, data.CourseID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *trackApi) unenroll(ctx echo.Context) error {
	var data EnrollmentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnrollmentRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.UnenrollStudent(ctx.Request().Context(), data.UserID, data.CourseID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *trackApi) toggleProgress(ctx echo.Context) error {
	var data ToggleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ToggleRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.ToggleLesson(ctx.Request().Context(), data.UserID, data.LessonID, data.Completed)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}
