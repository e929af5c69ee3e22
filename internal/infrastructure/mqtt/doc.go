// Package mqtt provides the MQTT link between the controller and the rest of
// the site.
//
// Outbound, the controller mirrors every status document it records
// (state, safety, status) to a retained topic so dashboards always see the
// latest value. Inbound, sensor reader daemons publish weather and power
// readings that the safety checks consume.
//
// # Topic layout
//
//	observatory/{site}/system/status        online/offline presence (LWT)
//	observatory/{site}/current/{collection} latest status document (retained)
//	observatory/{site}/sensors/{kind}       readings from sensor daemons
//	observatory/{site}/event/{kind}         one-off events (forced park)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllSensors(), 1, handler)
package mqtt
