package main

import (
	"fmt"
	"net/http"
	"strconv"

	"tailscale.com/tsweb"

	"github.com/blackknights-robotics/motioncore/internal/align"
	"github.com/blackknights-robotics/motioncore/internal/geom"
	"github.com/blackknights-robotics/motioncore/internal/httputil"
	"github.com/blackknights-robotics/motioncore/internal/robot"
	"github.com/blackknights-robotics/motioncore/internal/version"
)

type poseJSON struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	ThetaDeg float64 `json:"theta_deg"`
}

func toPoseJSON(p geom.Pose2D) poseJSON {
	return poseJSON{X: p.X, Y: p.Y, ThetaDeg: geom.Degrees(p.Theta)}
}

type statusJSON struct {
	Robot    poseJSON `json:"robot"`
	Odometry poseJSON `json:"odometry"`
	Truth    poseJSON `json:"truth"`
	Command  string   `json:"command"`
	Align    string   `json:"align,omitempty"`
	Ticks    uint64   `json:"ticks"`
	Overruns uint64   `json:"overruns"`
	Version  string   `json:"version"`
}

// formPose reads x, y and theta_deg form values. Missing values are zero.
func formPose(r *http.Request) (geom.Pose2D, error) {
	var v [3]float64
	for i, key := range []string{"x", "y", "theta_deg"} {
		s := r.FormValue(key)
		if s == "" {
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return geom.Pose2D{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		v[i] = f
	}
	return geom.NewPose2D(v[0], v[1], geom.Radians(v[2])), nil
}

func commandName(c robot.Command) string {
	switch c.(type) {
	case nil:
		return "none"
	case *robot.Teleop:
		return "teleop"
	case *align.Controller:
		return "align"
	default:
		return fmt.Sprintf("%T", c)
	}
}

// attachAdminRoutes mounts the sim's control endpoints on the tsweb debug
// mux.
func (b *simBot) attachAdminRoutes(mux *http.ServeMux, loop *robot.Loop) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("robot-status", "robot pose and active command", func(w http.ResponseWriter, r *http.Request) {
		var st statusJSON
		loop.Do(func(active robot.Command) {
			st = statusJSON{
				Robot:    toPoseJSON(b.est.RobotPose()),
				Odometry: toPoseJSON(b.est.OdometryPose()),
				Truth:    toPoseJSON(b.chassis.Pose()),
				Command:  commandName(active),
			}
			if c, ok := active.(*align.Controller); ok {
				st.Align = c.State().String()
			}
		})
		st.Ticks, st.Overruns = loop.Ticks(), loop.Overruns()
		st.Version = version.String()
		httputil.WriteJSONOK(w, st)
	})

	debug.HandleSilentFunc("align", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequirePost(w, r) {
			return
		}
		target, err := formPose(r)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		profile := r.FormValue("profile")
		if profile == "" {
			profile = "default"
		}
		stop := r.FormValue("stop") != "false"

		c := align.NewController(b.drive, b.est, func() geom.Pose2D { return target },
			align.Options{Profile: profile, StopWhenFinished: stop},
			b.opts.Tunables, b.opts.Clock, b.opts.Publisher)
		loop.Schedule(c)
		httputil.WriteJSONOK(w, map[string]string{
			"attempt": c.Goal().ID.String(),
			"target":  c.Goal().Target.String(),
		})
	})

	debug.HandleSilentFunc("cancel", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequirePost(w, r) {
			return
		}
		loop.Cancel()
		fmt.Fprintln(w, "cancelled")
	})

	debug.HandleSilentFunc("reset-pose", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequirePost(w, r) {
			return
		}
		p, err := formPose(r)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		loop.Do(func(robot.Command) { b.resetPose(p) })
		fmt.Fprintf(w, "pose reset to %s\n", p)
	})
}
